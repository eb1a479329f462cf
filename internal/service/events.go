package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/formschema"
	"github.com/iliyamo/event-checkin/internal/model"
)

// EventInput is the authoring payload for a new event.
type EventInput struct {
	Name        string                  `json:"name" validate:"required,max=255"`
	Description string                  `json:"description" validate:"max=5000"`
	Location    string                  `json:"location" validate:"max=255"`
	StartsAt    time.Time               `json:"starts_at"`
	Fields      []model.FieldDefinition `json:"fields"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateEventInput(in EventInput) formschema.FieldErrors {
	errs := formschema.FieldErrors{}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs["event"] = []string{err.Error()}
			return errs
		}
		for _, fe := range verrs {
			errs[fe.Field()] = append(errs[fe.Field()], ruleMessage(fe))
		}
	}
	if in.StartsAt.IsZero() {
		errs["starts_at"] = append(errs["starts_at"], "is required")
	}
	for k, msgs := range formschema.ValidateDefinitions(in.Fields) {
		errs[k] = append(errs[k], msgs...)
	}
	return errs
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "failed the " + fe.Tag() + " rule"
}

// CreateEvent validates and stores a new event.  Field names are trimmed;
// a missing label defaults to the name.
func (s *Registrations) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	in.Name = strings.TrimSpace(in.Name)
	fields := make([]model.FieldDefinition, len(in.Fields))
	for i, f := range in.Fields {
		f.Name = strings.TrimSpace(f.Name)
		f.Label = strings.TrimSpace(f.Label)
		if f.Label == "" {
			f.Label = f.Name
		}
		fields[i] = f
	}
	in.Fields = fields

	if errs := validateEventInput(in); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	ev := &model.Event{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		StartsAt:    in.StartsAt.UTC(),
		Fields:      in.Fields,
		CreatedAt:   s.stamp(),
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("event created", zap.String("event_id", ev.ID), zap.Int("fields", len(ev.Fields)))
	return ev, nil
}

// GetEvent returns one event.
func (s *Registrations) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return ev, nil
}

// ListEvents returns all events ordered by start time.
func (s *Registrations) ListEvents(ctx context.Context) ([]model.Event, error) {
	evs, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return evs, nil
}
