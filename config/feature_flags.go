package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollout for the
// achievement engine. Supports percentage rollout, guild targeting, and
// per-user overrides for testing.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides maps a Discord user ID (snowflake) to a feature-name ->
	// enabled override, for testing/debugging specific accounts.
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100); users are assigned a stable bucket based
	// on a hash of their user ID and the feature name.
	RolloutPercent int

	// TargetGuilds restricts the feature to specific guild IDs; empty means
	// every guild.
	TargetGuilds []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// Variants for A/B-testing notification copy or evaluator behavior.
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string // Discord user snowflake
	GuildID string // Discord guild snowflake
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Catalog features ===
	FeatureCatalogHiddenAchievements = "catalog.hidden_achievements" // show locked/hidden achievements in listings
	FeatureCatalogCategoryIcons      = "catalog.category_icons"      // render category icon metadata
	FeatureCatalogRoleRewards        = "catalog.role_rewards"        // grant Discord roles on award

	// === Progress & evaluation features ===
	FeatureProgressMilestoneNotify = "progress.milestone_notify" // notify on configurable progress checkpoints
	FeatureEngineBatchReplay       = "engine.batch_replay"        // periodic replay of unprocessed events
	FeatureEngineConditional       = "engine.conditional_evaluator" // enable the expression-based conditional evaluator

	// === Notification features ===
	FeatureNotifyAnnouncements  = "notify.announcements"   // public guild announcement channel posts
	FeatureNotifyDailyDigest    = "notify.daily_digest"    // end-of-day award summary
	FeatureNotifyQuietHours     = "notify.quiet_hours"     // honor per-user quiet hours
	FeatureNotifyCategoryOptOut = "notify.category_opt_out" // per-category notification opt-out

	// === Observability features ===
	FeatureObservabilityRegression = "observability.regression_detection" // baseline regression detector

	// === Experimental features ===
	FeatureExperimentalConditionalExpr = "experimental.conditional_expr" // arbitrary expression criteria
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureCatalogHiddenAchievements] = &Feature{
		Name:           FeatureCatalogHiddenAchievements,
		Description:    "Show hidden/secret achievements once unlocked",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCatalogCategoryIcons] = &Feature{
		Name:           FeatureCatalogCategoryIcons,
		Description:    "Render category icon metadata in catalog listings",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCatalogRoleRewards] = &Feature{
		Name:           FeatureCatalogRoleRewards,
		Description:    "Grant configured Discord roles when an achievement is awarded",
		Enabled:        false, // requires bot role-management permission per guild
		RolloutPercent: 0,
	}

	ff.features[FeatureProgressMilestoneNotify] = &Feature{
		Name:           FeatureProgressMilestoneNotify,
		Description:    "Notify at progress checkpoints before the achievement unlocks",
		Enabled:        true,
		RolloutPercent: 50,
	}

	ff.features[FeatureEngineBatchReplay] = &Feature{
		Name:           FeatureEngineBatchReplay,
		Description:    "Periodically replay unprocessed events left behind by a crash",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureEngineConditional] = &Feature{
		Name:           FeatureEngineConditional,
		Description:    "Enable the conditional (expression-criteria) evaluator",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyAnnouncements] = &Feature{
		Name:           FeatureNotifyAnnouncements,
		Description:    "Post awards to a guild's configured announcement channel",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyDailyDigest] = &Feature{
		Name:           FeatureNotifyDailyDigest,
		Description:    "Send a daily summary of awards across a guild",
		Enabled:        false, // opt-in per guild via global settings
		RolloutPercent: 0,
	}

	ff.features[FeatureNotifyQuietHours] = &Feature{
		Name:           FeatureNotifyQuietHours,
		Description:    "Suppress delivery during a user's configured quiet hours",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyCategoryOptOut] = &Feature{
		Name:           FeatureNotifyCategoryOptOut,
		Description:    "Allow per-category notification opt-out",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureObservabilityRegression] = &Feature{
		Name:           FeatureObservabilityRegression,
		Description:    "Compare live p95 latencies against a recorded baseline",
		Enabled:        false, // requires OBSERVABILITY_BASELINE_PATH to be set
		RolloutPercent: 0,
	}

	ff.features[FeatureExperimentalConditionalExpr] = &Feature{
		Name:           FeatureExperimentalConditionalExpr,
		Description:    "Arbitrary expression-based achievement criteria",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts a feature name to an environment variable key.
// "catalog.role_rewards" -> "FEATURE_CATALOG_ROLE_REWARDS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.UserID != "" {
		if userOverrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if len(feature.TargetGuilds) > 0 && ctx != nil && ctx.GuildID != "" {
		guildMatch := false
		for _, g := range feature.TargetGuilds {
			if g == ctx.GuildID {
				guildMatch = true
				break
			}
		}
		if !guildMatch {
			return false
		}
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return ff.isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage, using a
// stable hash so a user stays in the same bucket across calls.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	hash := h.Sum32()

	bucket := int(hash % 100)
	return bucket < percent
}

// GetVariant returns the A/B test variant for a user.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 {
		return ""
	}

	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.UserID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Convenience methods for common checks ---

// NotificationsEnabled checks if any notification delivery path is enabled.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyAnnouncements, ctx) ||
		ff.IsEnabled(FeatureNotifyDailyDigest, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
