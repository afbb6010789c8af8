package stats

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

const DateLayout = "2006-01-02"

type ClinicLister interface {
	ListClinics(ctx context.Context) ([]*model.Clinic, error)
}

// ClinicReport is one clinic's archived call activity for a day.
type ClinicReport struct {
	ClinicNumber int                    `json:"clinicNumber"`
	ClinicName   string                 `json:"clinicName,omitempty"`
	Total        int                    `json:"total"`
	ByType       map[model.CallType]int `json:"byType"`
	LastClient   int                    `json:"lastClient"`
}

type DailyReport struct {
	Date    string         `json:"date"`
	Total   int            `json:"total"`
	Clinics []ClinicReport `json:"clinics"`
}

type Service struct {
	history repository.CallHistoryRepository
	clinics ClinicLister
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(history repository.CallHistoryRepository, clinics ClinicLister, logger zerolog.Logger) *Service {
	return &Service{
		history: history,
		clinics: clinics,
		logger:  logger.With().Str("component", "stats").Logger(),
		now:     time.Now,
	}
}

// Daily reports per-clinic totals for date (YYYY-MM-DD, empty for today).
// Clinics with no archived calls are included with zero totals.
func (s *Service) Daily(ctx context.Context, date string) (*DailyReport, error) {
	day := s.now()
	if date != "" {
		parsed, err := time.ParseInLocation(DateLayout, date, day.Location())
		if err != nil {
			return nil, apperrors.BadRequest("date must be YYYY-MM-DD", err)
		}
		day = parsed
	}

	rows, err := s.history.DailyStats(ctx, day)
	if err != nil {
		return nil, service.RepoError("call stats", "load", err)
	}

	names := map[int]string{}
	clinics, err := s.clinics.ListClinics(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("clinic names unavailable for stats")
	}
	byClinic := map[int]*ClinicReport{}
	for _, c := range clinics {
		names[c.Number] = c.Name
		byClinic[c.Number] = &ClinicReport{ClinicNumber: c.Number, ByType: map[model.CallType]int{}}
	}

	report := &DailyReport{Date: day.Format(DateLayout)}
	for _, row := range rows {
		r, ok := byClinic[row.ClinicNumber]
		if !ok {
			r = &ClinicReport{ClinicNumber: row.ClinicNumber, ByType: map[model.CallType]int{}}
			byClinic[row.ClinicNumber] = r
		}
		r.ByType[row.Type] += row.Total
		r.Total += row.Total
		report.Total += row.Total
		if row.Type != model.CallTypeByName && row.LastClient > r.LastClient {
			r.LastClient = row.LastClient
		}
	}

	report.Clinics = make([]ClinicReport, 0, len(byClinic))
	for n, r := range byClinic {
		r.ClinicName = names[n]
		report.Clinics = append(report.Clinics, *r)
	}
	sort.Slice(report.Clinics, func(i, j int) bool {
		return report.Clinics[i].ClinicNumber < report.Clinics[j].ClinicNumber
	})
	return report, nil
}
