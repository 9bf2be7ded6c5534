package attribution_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/merchantpulse/attribution/internal/attribution"
	"github.com/merchantpulse/attribution/internal/domain"
)

func TestStableID_Shape(t *testing.T) {
	id := attribution.StableID(domain.DefaultConfig())
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), id)
}

func TestStableID_IgnoresConstructionOrder(t *testing.T) {
	a := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{Key: "two", Label: "Two", Enabled: true, Order: 2},
			{Key: "one", Label: "One", Enabled: true, Order: 1},
		},
	}
	b := &domain.Config{
		Version: domain.ConfigVersion,
		Sources: []domain.Source{
			{Key: "one", Label: "One", Enabled: true, Order: 1},
			{Key: "two", Label: "Two", Enabled: true, Order: 2},
		},
	}

	assert.Equal(t, attribution.StableID(a), attribution.StableID(b))
}

func TestStableID_ChangesWithContent(t *testing.T) {
	base := domain.DefaultConfig()
	edited := domain.DefaultConfig()
	edited.Sources[0].Enabled = false

	assert.NotEqual(t, attribution.StableID(base), attribution.StableID(edited))
}

func TestStableID_StableAcrossCalls(t *testing.T) {
	cfg := domain.DefaultConfig()
	first := attribution.StableID(cfg)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, attribution.StableID(cfg))
	}
}
