package invest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/storage"
)

// ProfileColors is the palette new profiles cycle through.
var ProfileColors = []string{"#00afdb", "#e6b800", "#4caf50", "#fe3d3d", "#9c27b0", "#ff9800"}

// Profile is a saved plan shown under its own name and color.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Plan
}

// ProfileInput creates or replaces a profile.
type ProfileInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Plan
}

func (in ProfileInput) normalize() (ProfileInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, core.ErrEmptyName
	}
	if err := in.Plan.Validate(); err != nil {
		return in, err
	}
	return in, nil
}

// Planner keeps the saved profiles. It follows the debts ledger: a
// mutation is persisted before it is published.
type Planner struct {
	store    storage.Store
	logger   *log.Logger
	profiles atomic.Pointer[[]Profile]
}

func NewPlanner(store storage.Store, logger *log.Logger) *Planner {
	p := &Planner{store: store, logger: log.OrDefault(logger, log.ComponentInvest)}
	p.profiles.Store(&[]Profile{})
	return p
}

// Load reads the saved profiles.
func (p *Planner) Load(ctx context.Context) error {
	list, _, err := storage.GetJSON[[]Profile](ctx, p.store, storage.KeyInvestProfiles)
	if err != nil {
		return fmt.Errorf("load investment profiles: %w", err)
	}
	p.profiles.Store(&list)
	p.logger.InfoContext(ctx, "Investment profiles loaded", log.FieldCount, len(list))
	return nil
}

// Profiles returns the profiles in creation order.
func (p *Planner) Profiles() []Profile {
	return slices.Clone(*p.profiles.Load())
}

func (p *Planner) Get(id string) (Profile, error) {
	for _, pr := range *p.profiles.Load() {
		if pr.ID == id {
			return pr, nil
		}
	}
	return Profile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
}

// Create saves a new profile. An empty color takes the next palette entry.
func (p *Planner) Create(ctx context.Context, in ProfileInput) (Profile, error) {
	in, err := in.normalize()
	if err != nil {
		return Profile{}, err
	}
	cur := *p.profiles.Load()
	if in.Color == "" {
		in.Color = ProfileColors[len(cur)%len(ProfileColors)]
	}
	pr := Profile{ID: "profile_" + uuid.NewString(), Name: in.Name, Color: in.Color, Plan: in.Plan}

	next := append(slices.Clone(cur), pr)
	if err := p.save(ctx, next); err != nil {
		return Profile{}, err
	}
	p.logger.InfoContext(ctx, "Investment profile saved", "profile_id", pr.ID)
	return pr, nil
}

// Update replaces name, plan and, when given, color of a profile.
func (p *Planner) Update(ctx context.Context, id string, in ProfileInput) (Profile, error) {
	in, err := in.normalize()
	if err != nil {
		return Profile{}, err
	}
	cur := *p.profiles.Load()
	i := slices.IndexFunc(cur, func(pr Profile) bool { return pr.ID == id })
	if i < 0 {
		return Profile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}

	next := slices.Clone(cur)
	next[i].Name = in.Name
	next[i].Plan = in.Plan
	if in.Color != "" {
		next[i].Color = in.Color
	}
	if err := p.save(ctx, next); err != nil {
		return Profile{}, err
	}
	return next[i], nil
}

func (p *Planner) Delete(ctx context.Context, id string) error {
	cur := *p.profiles.Load()
	next := slices.DeleteFunc(slices.Clone(cur), func(pr Profile) bool { return pr.ID == id })
	if len(next) == len(cur) {
		return fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}
	return p.save(ctx, next)
}

func (p *Planner) save(ctx context.Context, list []Profile) error {
	if err := storage.SetJSON(ctx, p.store, storage.KeyInvestProfiles, list); err != nil {
		p.logger.ErrorContext(ctx, "Failed to persist investment profiles", log.FieldError, err)
		return fmt.Errorf("save investment profiles: %w", err)
	}
	p.profiles.Store(&list)
	return nil
}
