package email

import (
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu    sync.Mutex
	sent  []string
	to    [][]string
	fails int
}

func (c *capture) send(_ string, _ smtp.Auth, _ string, to []string, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails > 0 {
		c.fails--
		return errors.New("smtp unavailable")
	}
	c.sent = append(c.sent, string(msg))
	c.to = append(c.to, to)
	return nil
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestService(host string) (*Service, *capture) {
	s := NewService(&Config{
		Host:        host,
		Port:        587,
		From:        "noreply@ora-admin.com",
		FromName:    "ORA Admin Console",
		FrontendURL: "https://console.example.com/",
	}, nil)
	c := &capture{}
	s.send = c.send
	return s, c
}

func TestTemplatesRender(t *testing.T) {
	s, _ := newTestService("")

	tests := []struct {
		name     string
		template string
		data     interface{}
		contains []string
	}{
		{
			name:     "ownership to new owner",
			template: "ownership_transferred",
			data: OwnershipTransferredData{
				RecipientName: "Raj", IsNewOwner: true, OrganizationName: "Acme Traders",
				PreviousOwnerName: "Asha", NewOwnerName: "Raj", NewOwnerEmail: "raj@acme.com",
			},
			contains: []string{"You are now the <strong>Owner</strong>", "Acme Traders"},
		},
		{
			name:     "ownership to previous owner",
			template: "ownership_transferred",
			data: OwnershipTransferredData{
				RecipientName: "Asha", OrganizationName: "Acme Traders",
				PreviousOwnerName: "Asha", NewOwnerName: "Raj", NewOwnerEmail: "raj@acme.com",
			},
			contains: []string{"Your role is now <strong>Admin</strong>"},
		},
		{
			name:     "deactivation carries reason",
			template: "organization_deactivated",
			data:     OrganizationDeactivatedData{OwnerName: "Asha", OrganizationName: "Acme", Reason: "non-payment", Date: "Jun 1, 2024"},
			contains: []string{"non-payment", "Jun 1, 2024"},
		},
		{
			name:     "expiring pluralizes",
			template: "subscription_expiring",
			data:     SubscriptionExpiringData{OwnerName: "Asha", OrganizationName: "Acme", DaysRemaining: 3, ExpiryDate: "Jun 4, 2024"},
			contains: []string{"3 days"},
		},
		{
			name:     "expiring singular",
			template: "subscription_expiring",
			data:     SubscriptionExpiringData{OwnerName: "Asha", OrganizationName: "Acme", DaysRemaining: 1, ExpiryDate: "Jun 2, 2024"},
			contains: []string{"1 day</strong>"},
		},
		{
			name:     "names are escaped",
			template: "member_added",
			data:     MemberAddedData{MemberName: "<script>", OrganizationName: "Acme", Role: "Manager"},
			contains: []string{"&lt;script&gt;", "Manager"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := s.Render(tt.template, tt.data)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	s, _ := newTestService("")
	_, err := s.Render("nope", nil)
	assert.Error(t, err)
}

func TestSendSkipsWithoutHost(t *testing.T) {
	s, c := newTestService("")
	require.NoError(t, s.SendMemberAdded("raj@acme.com", MemberAddedData{MemberName: "Raj", OrganizationName: "Acme", Role: "Admin"}))
	assert.Zero(t, c.count())
}

func TestSendBuildsMessage(t *testing.T) {
	s, c := newTestService("smtp.example.com")
	err := s.SendOrganizationActivated("asha@acme.com", OrganizationActivatedData{
		OwnerName: "Asha", OrganizationName: "Acme", ConsoleURL: "/organizations/org-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.count())

	msg := c.sent[0]
	assert.True(t, strings.HasPrefix(msg, "From: ORA Admin Console <noreply@ora-admin.com>\r\n"))
	assert.Contains(t, msg, "To: asha@acme.com\r\n")
	assert.Contains(t, msg, "Subject: [ORA] Acme is active again\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Contains(t, msg, "https://console.example.com/organizations/org-1")
	assert.Equal(t, []string{"asha@acme.com"}, c.to[0])
}

func TestQueueRetriesFailedSends(t *testing.T) {
	s, c := newTestService("smtp.example.com")
	c.fails = 2

	q := NewQueue(s, 1)
	q.initial = time.Millisecond
	s.queue = q
	defer q.Stop()

	require.NoError(t, s.SendSubscriptionExtended("asha@acme.com", SubscriptionExtendedData{
		OwnerName: "Asha", OrganizationName: "Acme", Duration: "6months",
		PreviousEndDate: "Jan 1, 2024", NewEndDate: "Dec 1, 2024",
	}))

	assert.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatchRejectsBrokenTemplateData(t *testing.T) {
	s, _ := newTestService("smtp.example.com")
	q := NewQueue(s, 1)
	s.queue = q
	defer q.Stop()

	// a struct without the fields the template reads fails to render
	err := s.dispatch([]string{"x@acme.com"}, "subject", "member_added", struct{}{})
	assert.Error(t, err)
}
