// Package wizard is the three-step tenant registration flow: business
// details, admin account, then subscription plan.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/pkg/validate"
)

type Step int

const (
	StepBusiness Step = iota + 1
	StepAdmin
	StepPlan
)

func (s Step) String() string {
	switch s {
	case StepBusiness:
		return "business"
	case StepAdmin:
		return "admin"
	case StepPlan:
		return "plan"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type Status int

const (
	Editing Status = iota
	Submitting
	Complete
	PendingVerification
)

var (
	ErrNotLastStep = errors.New("registration can only be submitted from the plan step")
	ErrFinished    = errors.New("registration is already finished")
	ErrSubmitting  = errors.New("registration is being submitted")
)

// Registrar is the server side of the wizard.
type Registrar interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.RegisterResponse, error)
}

type Wizard struct {
	mu     sync.Mutex
	api    Registrar
	step   Step
	status Status
	errs   validate.FieldErrors
	result *auth.RegisterResponse

	Business auth.BusinessStep
	Admin    auth.AdminStep
	Plan     auth.PlanStep
	Device   string
}

func New(api Registrar) *Wizard {
	return &Wizard{api: api, step: StepBusiness, errs: validate.FieldErrors{}}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Errors returns the field messages from the last Next or Submit.
func (w *Wizard) Errors() validate.FieldErrors {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(validate.FieldErrors, len(w.errs))
	for k, v := range w.errs {
		out[k] = v
	}
	return out
}

// Result is the server response after a successful Submit.
func (w *Wizard) Result() *auth.RegisterResponse {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// Next validates the current step and advances when it is valid. The plan
// step is the last; Next there only validates.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != Editing {
		return ErrFinished
	}

	if w.step == StepBusiness && w.Business.Subdomain == "" {
		w.Business.Subdomain = validate.SuggestSubdomain(w.Business.BusinessName)
	}
	if err := w.validateLocked(w.step); err != nil {
		return err
	}
	if w.step < StepPlan {
		w.step++
	}
	return nil
}

// Back moves one step back without validation. It stops at the first step.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != Editing {
		return
	}
	w.errs = validate.FieldErrors{}
	if w.step > StepBusiness {
		w.step--
	}
}

// Submit sends the whole registration from the plan step. Every step is
// re-validated first since the step fields stay editable; on a local or
// server validation error the wizard returns to the first step with a bad
// field and nothing is sent for a local one.
func (w *Wizard) Submit(ctx context.Context) (*auth.RegisterResponse, error) {
	w.mu.Lock()
	switch {
	case w.status == Submitting:
		w.mu.Unlock()
		return nil, ErrSubmitting
	case w.status != Editing:
		w.mu.Unlock()
		return nil, ErrFinished
	case w.step != StepPlan:
		w.mu.Unlock()
		return nil, ErrNotLastStep
	}
	for _, st := range []Step{StepBusiness, StepAdmin, StepPlan} {
		if err := w.validateLocked(st); err != nil {
			w.step = st
			w.mu.Unlock()
			return nil, err
		}
	}
	req := auth.RegisterRequest{Business: w.Business, Admin: w.Admin, Plan: w.Plan, Device: w.Device}
	w.status = Submitting
	w.mu.Unlock()

	resp, err := w.api.Register(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.status = Editing
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			w.errs = validate.FieldErrors(apiErr.Fields)
			w.step = stepOf(apiErr.Fields)
		}
		return nil, err
	}

	w.result = resp
	if resp.RequiresVerification || resp.Login == nil {
		w.status = PendingVerification
	} else {
		w.status = Complete
	}
	return resp, nil
}

func (w *Wizard) validateLocked(s Step) error {
	var err error
	switch s {
	case StepBusiness:
		err = w.Business.Validate()
	case StepAdmin:
		err = w.Admin.Validate()
	case StepPlan:
		err = w.Plan.Validate()
	}
	w.errs = validate.FieldErrors{}
	var fe validate.FieldErrors
	if errors.As(err, &fe) {
		w.errs = fe
	}
	return err
}

var stepFields = map[string]Step{
	"business_name":    StepBusiness,
	"subdomain":        StepBusiness,
	"business_phone":   StepBusiness,
	"business_email":   StepBusiness,
	"full_name":        StepAdmin,
	"email":            StepAdmin,
	"password":         StepAdmin,
	"confirm_password": StepAdmin,
}

func stepOf(fields map[string]string) Step {
	step := StepPlan
	for f := range fields {
		if s, ok := stepFields[f]; ok && s < step {
			step = s
		}
	}
	return step
}
