// Package hotspot manages the MikroTik routers of a tenant. Router passwords
// are encrypted before they reach the database.
package hotspot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/hotspot"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/pkg/fieldcrypt"
	"mnetifi-service/internal/pkg/routeros"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	Create(ctx context.Context, h *hotspot.Hotspot) error
	FindByID(ctx context.Context, tenantID, id int64) (*hotspot.Hotspot, error)
	Update(ctx context.Context, h *hotspot.Hotspot) error
	Delete(ctx context.Context, tenantID, id int64) error
	List(ctx context.Context, tenantID int64, activeOnly bool) ([]hotspot.Hotspot, error)
}

type HotspotService struct {
	repo        Repository
	secrets     *fieldcrypt.Encryptor
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewHotspotService(repo Repository, secrets *fieldcrypt.Encryptor, invalidator invalidation.Invalidator, logger *zap.Logger) *HotspotService {
	return &HotspotService{repo: repo, secrets: secrets, invalidator: invalidator, logger: logger}
}

func (s *HotspotService) CreateHotspot(ctx context.Context, tenantID int64, req *hotspot.CreateHotspotRequest) (*hotspot.Hotspot, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.RouterHost = strings.TrimSpace(req.RouterHost)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sealed, err := s.secrets.Encrypt(req.RouterPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt router password: %w", err)
	}

	h := &hotspot.Hotspot{
		TenantID:       tenantID,
		Name:           req.Name,
		Location:       req.Location,
		RouterHost:     req.RouterHost,
		RouterPort:     req.RouterPort,
		RouterUsername: req.RouterUsername,
		RouterPassword: sealed,
		HostKey:        req.HostKey,
		IsActive:       true,
	}
	if h.RouterPort == 0 {
		h.RouterPort = hotspot.DefaultSSHPort
	}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}

	s.logger.Info("hotspot created",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("hotspot_id", h.ID),
		zap.String("router_host", h.RouterHost),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Hotspot)
	return h, nil
}

func (s *HotspotService) UpdateHotspot(ctx context.Context, tenantID, id int64, req *hotspot.UpdateHotspotRequest) (*hotspot.Hotspot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	h, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		h.Name = strings.TrimSpace(*req.Name)
	}
	if req.Location != nil {
		h.Location = req.Location
	}
	if req.RouterHost != nil {
		h.RouterHost = strings.TrimSpace(*req.RouterHost)
	}
	if req.RouterPort != nil {
		h.RouterPort = *req.RouterPort
	}
	if req.RouterUsername != nil {
		h.RouterUsername = *req.RouterUsername
	}
	if req.HostKey != nil {
		h.HostKey = req.HostKey
	}
	if req.IsActive != nil {
		h.IsActive = *req.IsActive
	}
	if req.RouterPassword != nil && *req.RouterPassword != "" {
		sealed, err := s.secrets.Encrypt(*req.RouterPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt router password: %w", err)
		}
		h.RouterPassword = sealed
	}

	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}
	s.invalidator.Invalidate(ctx, tenantID, resource.Hotspot)
	return h, nil
}

func (s *HotspotService) DeleteHotspot(ctx context.Context, tenantID, id int64) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("hotspot deleted", zap.Int64("tenant_id", tenantID), zap.Int64("hotspot_id", id))
	s.invalidator.Invalidate(ctx, tenantID, resource.Hotspot)
	return nil
}

func (s *HotspotService) ListHotspots(ctx context.Context, tenantID int64) ([]hotspot.Hotspot, error) {
	return s.repo.List(ctx, tenantID, false)
}

// Target is a router ready to dial: the password is decrypted.
type Target struct {
	hotspot.Hotspot
	Password string
}

// SSH returns the dial parameters for the router.
func (t *Target) SSH() routeros.Target {
	out := routeros.Target{
		Host:     t.RouterHost,
		Port:     t.RouterPort,
		Username: t.RouterUsername,
		Password: t.Password,
	}
	if t.HostKey != nil {
		out.HostKey = *t.HostKey
	}
	return out
}

// Resolve loads a hotspot with its decrypted password for SSH access.
func (s *HotspotService) Resolve(ctx context.Context, tenantID, id int64) (*Target, error) {
	h, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.target(h)
}

// ActiveTargets lists every active router of a tenant ready to dial.
func (s *HotspotService) ActiveTargets(ctx context.Context, tenantID int64) ([]Target, error) {
	hs, err := s.repo.List(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(hs))
	for i := range hs {
		t, err := s.target(&hs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *HotspotService) target(h *hotspot.Hotspot) (*Target, error) {
	pw, err := s.secrets.Decrypt(h.RouterPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt router password for hotspot %d: %w", h.ID, err)
	}
	return &Target{Hotspot: *h, Password: pw}, nil
}
