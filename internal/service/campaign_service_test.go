package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/service"
)

func TestRenderTemplate(t *testing.T) {
	got := service.RenderTemplate("Hi {nome}, {nome}! {unknown}", map[string]string{"nome": "Ana"})
	assert.Equal(t, "Hi Ana, Ana! {unknown}", got)
}

func TestPersonalize(t *testing.T) {
	morning := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	r := service.Recipient{Name: "Ana", Phone: "+5511999990000", Email: "ana@example.com"}

	tests := []struct {
		name        string
		content     string
		recipient   service.Recipient
		now         time.Time
		defaultName string
		want        string
	}{
		{"all placeholders", "{saudacao} {nome} {telefone} {email}", r, morning, service.DefaultContactName, "Bom dia Ana +5511999990000 ana@example.com"},
		{"contact without name", "Oi {nome}", service.Recipient{}, morning, service.DefaultContactName, "Oi amigo"},
		{"session without name", "Oi {nome}", service.Recipient{}, morning, service.DefaultSessionName, "Oi Colega"},
		{"missing email", "[{email}]", service.Recipient{Name: "x"}, morning, service.DefaultContactName, "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.Personalize(tt.content, tt.recipient, tt.now, tt.defaultName))
		})
	}
}

func TestGreeting(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 3, 5, h, 30, 0, 0, time.UTC) }
	assert.Equal(t, "Bom dia", service.Greeting(at(0)))
	assert.Equal(t, "Bom dia", service.Greeting(at(11)))
	assert.Equal(t, "Boa tarde", service.Greeting(at(12)))
	assert.Equal(t, "Boa tarde", service.Greeting(at(17)))
	assert.Equal(t, "Boa noite", service.Greeting(at(18)))
	assert.Equal(t, "Boa noite", service.Greeting(at(23)))
}

func TestSendingWindow(t *testing.T) {
	c := service.NewCampaign("org")
	tuesday := func(h, m int) time.Time { return time.Date(2024, 3, 5, h, m, 0, 0, time.UTC) }

	assert.False(t, service.InSendingWindow(c, tuesday(7, 59)))
	assert.True(t, service.InSendingWindow(c, tuesday(8, 0)))
	assert.True(t, service.InSendingWindow(c, tuesday(17, 59)))
	assert.False(t, service.InSendingWindow(c, tuesday(18, 0)), "end hour is exclusive")

	sunday := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	assert.False(t, service.InSendingWindow(c, sunday))
	c.AllowWeekends = true
	assert.True(t, service.InSendingWindow(c, sunday))

	c.UseWorkingHours = false
	assert.True(t, service.InSendingWindow(c, time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)))
}

func TestNextAllowedAt(t *testing.T) {
	c := service.NewCampaign("org")

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"inside window", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{"before opening", time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)},
		{"after closing", time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC), time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)},
		{"friday evening", time.Date(2024, 3, 8, 18, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.NextAllowedAt(c, tt.now))
		})
	}

	weekends := &model.Campaign{UseWorkingHours: true, WorkingHourStart: 9, WorkingHourEnd: 17, AllowWeekends: true}
	saturdayNight := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), service.NextAllowedAt(weekends, saturdayNight))
}
