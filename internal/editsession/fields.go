package editsession

import (
	"strconv"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/validation"
)

// Field is an editable organization field.
type Field string

const (
	FieldName            Field = validation.FieldName
	FieldAddress         Field = validation.FieldAddress
	FieldPhone           Field = validation.FieldPhone
	FieldTaxID           Field = validation.FieldTaxID
	FieldLatitude        Field = validation.FieldLatitude
	FieldLongitude       Field = validation.FieldLongitude
	FieldCheckIn         Field = "checkIn"
	FieldCheckOut        Field = "checkOut"
	FieldHalfDayCheckOut Field = "halfDayCheckOut"
	FieldWeeklyOffDay    Field = "weeklyOffDay"
	FieldTimezone        Field = "timezone"
)

type fieldSpec struct {
	format   func(string) string
	validate func(string) error
	read     func(*models.Organization) string
	write    func(*models.Organization, string)
}

func identity(v string) string { return v }

func none(string) error { return nil }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Working hours are passthrough settings; only the core fields are validated.
var fields = map[Field]fieldSpec{
	FieldName: {
		format:   identity,
		validate: validation.OrganizationName,
		read:     func(o *models.Organization) string { return o.Name },
		write:    func(o *models.Organization, v string) { o.Name = v },
	},
	FieldAddress: {
		format:   identity,
		validate: validation.Address,
		read:     func(o *models.Organization) string { return o.Address },
		write:    func(o *models.Organization, v string) { o.Address = v },
	},
	FieldPhone: {
		format:   validation.DigitsOnly,
		validate: validation.Phone,
		read:     func(o *models.Organization) string { return o.Phone },
		write:    func(o *models.Organization, v string) { o.Phone = v },
	},
	FieldTaxID: {
		format:   validation.FormatTaxIDEdit,
		validate: validation.TaxIDEdit,
		read:     func(o *models.Organization) string { return o.TaxID },
		write:    func(o *models.Organization, v string) { o.TaxID = v },
	},
	FieldLatitude: {
		format:   identity,
		validate: validation.Latitude,
		read:     func(o *models.Organization) string { return formatFloat(o.Location.Latitude) },
		write: func(o *models.Organization, v string) {
			o.Location.Latitude, _ = validation.ParseCoordinate(v)
		},
	},
	FieldLongitude: {
		format:   identity,
		validate: validation.Longitude,
		read:     func(o *models.Organization) string { return formatFloat(o.Location.Longitude) },
		write: func(o *models.Organization, v string) {
			o.Location.Longitude, _ = validation.ParseCoordinate(v)
		},
	},
	FieldCheckIn: {
		format:   identity,
		validate: none,
		read:     func(o *models.Organization) string { return o.WorkingHours.CheckIn },
		write:    func(o *models.Organization, v string) { o.WorkingHours.CheckIn = v },
	},
	FieldCheckOut: {
		format:   identity,
		validate: none,
		read:     func(o *models.Organization) string { return o.WorkingHours.CheckOut },
		write:    func(o *models.Organization, v string) { o.WorkingHours.CheckOut = v },
	},
	FieldHalfDayCheckOut: {
		format:   identity,
		validate: none,
		read:     func(o *models.Organization) string { return o.WorkingHours.HalfDayCheckOut },
		write:    func(o *models.Organization, v string) { o.WorkingHours.HalfDayCheckOut = v },
	},
	FieldWeeklyOffDay: {
		format:   identity,
		validate: none,
		read:     func(o *models.Organization) string { return o.WorkingHours.WeeklyOffDay },
		write:    func(o *models.Organization, v string) { o.WorkingHours.WeeklyOffDay = v },
	},
	FieldTimezone: {
		format:   identity,
		validate: none,
		read:     func(o *models.Organization) string { return o.WorkingHours.Timezone },
		write:    func(o *models.Organization, v string) { o.WorkingHours.Timezone = v },
	},
}

func lookup(f Field) (fieldSpec, error) {
	spec, ok := fields[f]
	if !ok {
		return fieldSpec{}, &apperr.ValidationError{Field: string(f), Message: "field cannot be edited"}
	}
	return spec, nil
}

// messageOf extracts the display message of a validator error.
func messageOf(err error) string {
	if ve, ok := err.(*apperr.ValidationError); ok {
		return ve.Message
	}
	return err.Error()
}
