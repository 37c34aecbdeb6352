// Package tenant covers the ISP account itself: profile, branding, encrypted
// provider credentials, and the super admin controls over status and tier.
package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/tenant"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/fieldcrypt"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/pkg/validate"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*tenant.Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error)
	Update(ctx context.Context, t *tenant.Tenant) error
	GetCredentials(ctx context.Context, id int64) (string, error)
	UpdateCredentials(ctx context.Context, id int64, blob string) error
	UpdateStatus(ctx context.Context, id int64, status tenant.Status) error
	UpdateTier(ctx context.Context, id int64, tier tenant.Tier, trialExpiresAt *time.Time) error
	List(ctx context.Context, filters *tenant.TenantListFilters) ([]tenant.Tenant, int64, error)
	Stats(ctx context.Context) (*tenant.PlatformStats, error)
	ExpireTrials(ctx context.Context, now time.Time) ([]int64, error)
}

// ClientCounter reports live websocket connections for platform stats.
type ClientCounter interface {
	TotalClients() int
}

// SessionRevoker signs out every admin of a tenant that is suspended.
type SessionRevoker interface {
	RevokeTenantSessions(ctx context.Context, tenantID int64) error
}

type TenantService struct {
	repo        Repository
	secrets     *fieldcrypt.Encryptor
	invalidator invalidation.Invalidator
	clients     ClientCounter
	revoker     SessionRevoker
	logger      *zap.Logger
	now         func() time.Time
}

func NewTenantService(
	repo Repository,
	secrets *fieldcrypt.Encryptor,
	invalidator invalidation.Invalidator,
	clients ClientCounter,
	revoker SessionRevoker,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		repo:        repo,
		secrets:     secrets,
		invalidator: invalidator,
		clients:     clients,
		revoker:     revoker,
		logger:      logger,
		now:         time.Now,
	}
}

// ========== Tenant admin ==========

func (s *TenantService) GetTenant(ctx context.Context, tenantID int64) (*tenant.Tenant, error) {
	return s.repo.FindByID(ctx, tenantID)
}

func (s *TenantService) UpdateTenant(ctx context.Context, tenantID int64, req *tenant.UpdateTenantRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		t.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		t.Phone, _ = validate.NormalizePhone(*req.Phone)
	}
	if req.Location != nil {
		t.Location = req.Location
	}
	if req.Branding != nil {
		t.Branding = *req.Branding
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("tenant profile updated", zap.Int64("tenant_id", tenantID))
	s.invalidator.Invalidate(ctx, tenantID, resource.Tenant)
	return t, nil
}

// Credentials returns the decrypted provider credentials for internal use by
// the payment and SMS clients. They never leave the server unmasked.
func (s *TenantService) Credentials(ctx context.Context, tenantID int64) (tenant.Credentials, error) {
	var creds tenant.Credentials
	blob, err := s.repo.GetCredentials(ctx, tenantID)
	if err != nil {
		return creds, err
	}
	if blob == "" {
		return creds, nil
	}
	plain, err := s.secrets.Decrypt(blob)
	if err != nil {
		return creds, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return creds, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

// MaskedCredentials keeps identifiers readable and masks every secret.
func (s *TenantService) MaskedCredentials(ctx context.Context, tenantID int64) (tenant.Credentials, error) {
	c, err := s.Credentials(ctx, tenantID)
	if err != nil {
		return c, err
	}
	c.MpesaPasskey = fieldcrypt.Mask(c.MpesaPasskey)
	c.MpesaConsumerKey = fieldcrypt.Mask(c.MpesaConsumerKey)
	c.MpesaConsumerSecret = fieldcrypt.Mask(c.MpesaConsumerSecret)
	c.SMSAPIKey = fieldcrypt.Mask(c.SMSAPIKey)
	return c, nil
}

func (s *TenantService) UpdateCredentials(ctx context.Context, tenantID int64, req *tenant.UpdateCredentialsRequest) (tenant.Credentials, error) {
	if err := req.Validate(); err != nil {
		return tenant.Credentials{}, err
	}
	current, err := s.Credentials(ctx, tenantID)
	if err != nil {
		return tenant.Credentials{}, err
	}

	merged := req.Merge(current)
	raw, err := json.Marshal(merged)
	if err != nil {
		return tenant.Credentials{}, fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := s.secrets.Encrypt(string(raw))
	if err != nil {
		return tenant.Credentials{}, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	if err := s.repo.UpdateCredentials(ctx, tenantID, sealed); err != nil {
		return tenant.Credentials{}, err
	}

	s.logger.Info("tenant credentials updated",
		zap.Int64("tenant_id", tenantID),
		zap.Bool("mpesa", merged.HasMpesa()),
		zap.Bool("sms", merged.HasSMS()),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Tenant)
	return s.MaskedCredentials(ctx, tenantID)
}

// ========== Portal ==========

// ResolvePortal finds the tenant behind a captive portal subdomain. Only
// active tenants serve a portal.
func (s *TenantService) ResolvePortal(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	t, err := s.repo.FindBySubdomain(ctx, strings.ToLower(subdomain))
	if err != nil {
		return nil, err
	}
	if t.Status != tenant.StatusActive {
		return nil, fmt.Errorf("tenant %s is %s: %w", t.Subdomain, t.Status, xerrors.ErrTenantInactive)
	}
	return t, nil
}

// ========== Super admin ==========

func (s *TenantService) ListTenants(ctx context.Context, filters *tenant.TenantListFilters) (*response.Paginated, error) {
	tenants, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(tenants, total, filters.Page, filters.PageSize)
	return &page, nil
}

func (s *TenantService) UpdateStatus(ctx context.Context, tenantID int64, req *tenant.UpdateStatusRequest) (*tenant.Tenant, error) {
	if !req.Status.Valid() {
		fe := validate.FieldErrors{}
		fe.Add("status", "status must be ACTIVE, SUSPENDED or EXPIRED")
		return nil, fe
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, req.Status); err != nil {
		return nil, err
	}

	if req.Status != tenant.StatusActive {
		if err := s.revoker.RevokeTenantSessions(ctx, tenantID); err != nil {
			s.logger.Error("failed to revoke tenant sessions", zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
	}
	s.logger.Info("tenant status changed", zap.Int64("tenant_id", tenantID), zap.String("status", string(req.Status)))
	s.invalidator.Invalidate(ctx, tenantID, resource.Tenant)
	return s.repo.FindByID(ctx, tenantID)
}

// UpdateTier restarts the trial clock when moving to TRIAL and clears it for
// paid tiers.
func (s *TenantService) UpdateTier(ctx context.Context, tenantID int64, req *tenant.UpdateTierRequest) (*tenant.Tenant, error) {
	if !req.Tier.Valid() {
		fe := validate.FieldErrors{}
		fe.Add("tier", "tier must be TRIAL, BASIC, PRO or ENTERPRISE")
		return nil, fe
	}
	var trialEnds *time.Time
	if req.Tier == tenant.TierTrial {
		t := s.now().Add(tenant.TrialPeriod)
		trialEnds = &t
	}
	if err := s.repo.UpdateTier(ctx, tenantID, req.Tier, trialEnds); err != nil {
		return nil, err
	}
	s.logger.Info("tenant tier changed", zap.Int64("tenant_id", tenantID), zap.String("tier", string(req.Tier)))
	s.invalidator.Invalidate(ctx, tenantID, resource.Tenant)
	return s.repo.FindByID(ctx, tenantID)
}

func (s *TenantService) PlatformStats(ctx context.Context) (*tenant.PlatformStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if s.clients != nil {
		stats.ConnectedClients = s.clients.TotalClients()
	}
	return stats, nil
}

// ExpireTrials runs from the scheduler.
func (s *TenantService) ExpireTrials(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireTrials(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.logger.Info("trial expired", zap.Int64("tenant_id", id))
		s.invalidator.Invalidate(ctx, id, resource.Tenant)
	}
	return len(ids), nil
}
