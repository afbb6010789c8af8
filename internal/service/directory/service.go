// Package directory manages the plain records around the queue: doctors,
// screens, video links, center settings and complaints.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

// ClinicLister is the part of the clinic service the directory needs.
type ClinicLister interface {
	ListScreenClinics(ctx context.Context, screenNumber int) ([]*model.Clinic, error)
	GetClinicByNumber(ctx context.Context, number int) (*model.Clinic, error)
}

type Repos struct {
	Doctors    repository.DoctorRepository
	Screens    repository.ScreenRepository
	Videos     repository.VideoLinkRepository
	Settings   repository.SettingsRepository
	Complaints repository.ComplaintRepository
}

type Service struct {
	repos   Repos
	clinics ClinicLister
	logger  zerolog.Logger
}

func NewService(repos Repos, clinics ClinicLister, logger zerolog.Logger) *Service {
	return &Service{
		repos:   repos,
		clinics: clinics,
		logger:  logger.With().Str("component", "directory").Logger(),
	}
}

// Doctors

func (s *Service) CreateDoctor(ctx context.Context, doctor *model.Doctor) error {
	if err := s.validateDoctor(ctx, doctor); err != nil {
		return err
	}
	if err := s.repos.Doctors.Create(ctx, doctor); err != nil {
		return service.RepoError("doctor", "create", err)
	}
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	doctor, err := s.repos.Doctors.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("doctor", "get", err)
	}
	return doctor, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, doctor *model.Doctor) error {
	if err := s.validateDoctor(ctx, doctor); err != nil {
		return err
	}
	if err := s.repos.Doctors.Update(ctx, doctor); err != nil {
		return service.RepoError("doctor", "update", err)
	}
	return nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return service.RepoError("doctor", "delete", s.repos.Doctors.Delete(ctx, id))
}

func (s *Service) ListDoctors(ctx context.Context, clinicNumbers ...int) ([]*model.Doctor, error) {
	doctors, err := s.repos.Doctors.List(ctx, clinicNumbers)
	if err != nil {
		return nil, service.RepoError("doctors", "list", err)
	}
	return doctors, nil
}

func (s *Service) validateDoctor(ctx context.Context, doctor *model.Doctor) error {
	doctor.Name = strings.TrimSpace(doctor.Name)
	if doctor.Name == "" {
		return apperrors.BadRequest("doctor name is required", nil)
	}
	if doctor.ClinicNumber <= 0 {
		return apperrors.BadRequest("clinic number is required", nil)
	}
	if _, err := s.clinics.GetClinicByNumber(ctx, doctor.ClinicNumber); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.BadRequest(fmt.Sprintf("clinic %d does not exist", doctor.ClinicNumber), err)
		}
		return fmt.Errorf("failed to look up clinic: %w", err)
	}
	return nil
}

// Screens

func (s *Service) CreateScreen(ctx context.Context, screen *model.Screen) error {
	if err := validateScreen(screen); err != nil {
		return err
	}
	return service.RepoError("screen", "create", s.repos.Screens.Create(ctx, screen))
}

func (s *Service) GetScreen(ctx context.Context, id uuid.UUID) (*model.Screen, error) {
	screen, err := s.repos.Screens.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("screen", "get", err)
	}
	return screen, nil
}

func (s *Service) UpdateScreen(ctx context.Context, screen *model.Screen) error {
	if err := validateScreen(screen); err != nil {
		return err
	}
	return service.RepoError("screen", "update", s.repos.Screens.Update(ctx, screen))
}

func (s *Service) DeleteScreen(ctx context.Context, id uuid.UUID) error {
	return service.RepoError("screen", "delete", s.repos.Screens.Delete(ctx, id))
}

func (s *Service) ListScreens(ctx context.Context) ([]*model.Screen, error) {
	screens, err := s.repos.Screens.List(ctx)
	if err != nil {
		return nil, service.RepoError("screens", "list", err)
	}
	return screens, nil
}

func validateScreen(screen *model.Screen) error {
	if screen.Number <= 0 {
		return apperrors.BadRequest("screen number must be a positive number", nil)
	}
	screen.Name = strings.TrimSpace(screen.Name)
	if screen.Name == "" {
		return apperrors.BadRequest("screen name is required", nil)
	}
	return nil
}

// ScreenView collects what a waiting-room display shows for one screen.
func (s *Service) ScreenView(ctx context.Context, number int) (*model.ScreenView, error) {
	screen, err := s.repos.Screens.GetByNumber(ctx, number)
	if err != nil {
		return nil, service.RepoError("screen", "get", err)
	}

	clinics, err := s.clinics.ListScreenClinics(ctx, number)
	if err != nil {
		return nil, err
	}

	view := &model.ScreenView{
		Screen:  *screen,
		Clinics: make([]model.ClinicSummary, 0, len(clinics)),
		Doctors: []*model.Doctor{},
	}
	numbers := make([]int, 0, len(clinics))
	for _, c := range clinics {
		view.Clinics = append(view.Clinics, c.Summary())
		numbers = append(numbers, c.Number)
	}

	if len(numbers) > 0 {
		if view.Doctors, err = s.ListDoctors(ctx, numbers...); err != nil {
			return nil, err
		}
	}
	if view.Videos, err = s.ListVideoLinks(ctx, true); err != nil {
		return nil, err
	}
	return view, nil
}

// Video links

func (s *Service) CreateVideoLink(ctx context.Context, link *model.VideoLink) error {
	if err := validateVideoLink(link); err != nil {
		return err
	}
	return service.RepoError("video link", "create", s.repos.Videos.Create(ctx, link))
}

func (s *Service) UpdateVideoLink(ctx context.Context, link *model.VideoLink) error {
	if err := validateVideoLink(link); err != nil {
		return err
	}
	return service.RepoError("video link", "update", s.repos.Videos.Update(ctx, link))
}

func (s *Service) DeleteVideoLink(ctx context.Context, id uuid.UUID) error {
	return service.RepoError("video link", "delete", s.repos.Videos.Delete(ctx, id))
}

func (s *Service) ListVideoLinks(ctx context.Context, activeOnly bool) ([]*model.VideoLink, error) {
	links, err := s.repos.Videos.List(ctx, activeOnly)
	if err != nil {
		return nil, service.RepoError("video links", "list", err)
	}
	return links, nil
}

func validateVideoLink(link *model.VideoLink) error {
	link.Title = strings.TrimSpace(link.Title)
	if link.Title == "" {
		return apperrors.BadRequest("video title is required", nil)
	}
	u, err := url.Parse(strings.TrimSpace(link.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperrors.BadRequest("video url must be an http(s) url", err)
	}
	link.URL = u.String()
	return nil
}

// Settings

// Settings returns the stored center settings, or the defaults before anyone saved them.
func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	settings, err := s.repos.Settings.Get(ctx, model.GeneralSettingsKey)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, service.RepoError("settings", "get", err)
	}
	return *settings, nil
}

func (s *Service) SaveSettings(ctx context.Context, settings *model.Settings) error {
	if settings.AlertDuration <= 0 {
		settings.AlertDuration = model.DefaultSettings().AlertDuration
	}
	if settings.SpeechSpeed <= 0 || settings.SpeechSpeed > 3 {
		return apperrors.BadRequest("speech speed must be between 0 and 3", nil)
	}
	if strings.TrimSpace(settings.AudioPath) == "" {
		settings.AudioPath = model.DefaultSettings().AudioPath
	}
	if err := s.repos.Settings.Upsert(ctx, model.GeneralSettingsKey, settings); err != nil {
		return service.RepoError("settings", "save", err)
	}
	s.logger.Info().Str("center", settings.CenterName).Msg("settings saved")
	return nil
}

// Complaints

func (s *Service) SubmitComplaint(ctx context.Context, complaint *model.Complaint) error {
	complaint.Text = strings.TrimSpace(complaint.Text)
	if complaint.Text == "" {
		return apperrors.BadRequest("complaint text is required", nil)
	}
	if utf8.RuneCountInString(complaint.Text) > model.MaxComplaintLen {
		return apperrors.BadRequest(fmt.Sprintf("complaint must be at most %d characters", model.MaxComplaintLen), nil)
	}
	complaint.Name = strings.TrimSpace(complaint.Name)
	if complaint.Name == "" {
		complaint.Name = model.AnonymousName
	}
	if complaint.ClinicNumber != nil && *complaint.ClinicNumber <= 0 {
		complaint.ClinicNumber = nil
	}
	return service.RepoError("complaint", "create", s.repos.Complaints.Create(ctx, complaint))
}

func (s *Service) ListComplaints(ctx context.Context, page model.Pagination) ([]*model.Complaint, int, error) {
	complaints, total, err := s.repos.Complaints.List(ctx, page)
	if err != nil {
		return nil, 0, service.RepoError("complaints", "list", err)
	}
	return complaints, total, nil
}

func (s *Service) DeleteComplaint(ctx context.Context, id uuid.UUID) error {
	return service.RepoError("complaint", "delete", s.repos.Complaints.Delete(ctx, id))
}
