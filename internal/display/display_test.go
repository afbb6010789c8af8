package display

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/viewer"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

func newScreenServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/public/screens/:number", func(c *gin.Context) {
		if c.Param("number") != "1" {
			c.JSON(http.StatusNotFound, httputil.NewErrorResponse("screen not found"))
			return
		}
		c.JSON(http.StatusOK, httputil.NewSuccessResponse(model.ScreenView{
			Screen:  model.Screen{Number: 1, Name: "Ground floor"},
			Clinics: []model.ClinicSummary{{Number: 2, Name: "Dental", ScreenNumber: 1}},
		}))
	})
	r.GET("/api/v1/public/settings", func(c *gin.Context) {
		c.JSON(http.StatusOK, httputil.NewSuccessResponse(model.Settings{
			CenterName:    "North Center",
			AlertDuration: 8,
			SpeechSpeed:   1,
		}))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPILoadsView(t *testing.T) {
	srv := newScreenServer(t)
	screens := NewAPI(srv.URL + "/")

	view, err := screens.ScreenView(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ground floor", view.Screen.Name)
	require.Len(t, view.Clinics, 1)
	assert.Equal(t, 2, view.Clinics[0].Number)
}

func TestAPIReportsMissingScreen(t *testing.T) {
	srv := newScreenServer(t)
	screens := NewAPI(srv.URL)

	_, err := screens.ScreenView(context.Background(), 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "screen not found")
}

func TestAPILoadsSettings(t *testing.T) {
	srv := newScreenServer(t)

	settings, err := NewAPI(srv.URL).Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "North Center", settings.CenterName)
	assert.Equal(t, 8*time.Second, settings.AlertDurationOrDefault())
}

func TestApplySettingsSetsNoticeDuration(t *testing.T) {
	srv := newScreenServer(t)
	sess := viewer.NewSession(nil, NewLogRenderer(zerolog.Nop()), viewer.Options{Config: viewer.DefaultConfig(), Logger: zerolog.Nop()})

	settings, err := ApplySettings(context.Background(), NewAPI(srv.URL), sess)
	require.NoError(t, err)
	assert.Equal(t, "North Center", settings.CenterName)
	assert.Equal(t, 8*time.Second, sess.NoticeDuration())
}

func TestApplySettingsKeepsNoticeWhenUnreachable(t *testing.T) {
	srv := newScreenServer(t)
	srv.Close()
	sess := viewer.NewSession(nil, NewLogRenderer(zerolog.Nop()), viewer.Options{Config: viewer.DefaultConfig(), Logger: zerolog.Nop()})
	before := sess.NoticeDuration()

	_, err := ApplySettings(context.Background(), NewAPI(srv.URL), sess)
	require.Error(t, err)
	assert.Equal(t, before, sess.NoticeDuration())
}

func TestLogRendererWritesCalls(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogRenderer(zerolog.New(&buf))

	r.Notice(&model.CallEvent{ClinicNumber: 2, ClinicName: "Dental", ClientNumber: 12, Type: model.CallTypeNormal})
	r.QueueState(2, model.QueueState{Current: 12, Status: model.QueueStatusActive}, &viewer.Ticket{YourNumber: 15, WaitingCount: 3})
	r.Overlay(&model.Announcement{Type: model.AnnouncementEmergency, Message: "Code blue"})

	out := buf.String()
	assert.Contains(t, out, `"client":"١٢"`)
	assert.Contains(t, out, `"clinic_name":"Dental"`)
	assert.Contains(t, out, `"waiting":3`)
	assert.Contains(t, out, `"message":"Code blue"`)
}
