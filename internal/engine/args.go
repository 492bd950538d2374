package engine

import "time"

// Args is the backpressure policy: per-round batch caps and watermarks
// consumed by every tick. It is immutable once the loop starts.
type Args struct {
	// ReadyBatch is the maximum number of requests dispatched to the
	// fetch client per tick.
	ReadyBatch int `mapstructure:"ready_batch"`
	// ReadyLowWater and ReadyHighWater bound the ready buffer: promotion
	// from the scheduled buffer runs when the ready depth is at or below
	// the low watermark and stops at the high watermark.
	ReadyLowWater  int `mapstructure:"ready_low_water"`
	ReadyHighWater int `mapstructure:"ready_high_water"`
	// TaskBatch is the maximum number of tasks minted into requests per tick.
	TaskBatch int `mapstructure:"task_batch"`
	// MinProfilesPerRound is the profile count below which minting blocks
	// on an in-flight acquisition.
	MinProfilesPerRound int `mapstructure:"min_profiles_per_round"`
	// ResponseBatch is the maximum number of responses harvested per tick.
	ResponseBatch int `mapstructure:"response_batch"`
	// ProfileLowWater and ProfileHighWater bound the profile pool:
	// replenishment is unconditional at or below the low watermark and
	// throttled between the watermarks.
	ProfileLowWater  int `mapstructure:"profile_low_water"`
	ProfileHighWater int `mapstructure:"profile_high_water"`
	// ErrorFlushThreshold and ResultFlushThreshold are the sink depths
	// above which a flush through the pipeline is triggered.
	ErrorFlushThreshold  int `mapstructure:"error_flush_threshold"`
	ResultFlushThreshold int `mapstructure:"result_flush_threshold"`
	// SkipSeed disables the initial profile + task seed phase.
	SkipSeed bool `mapstructure:"skip_seed"`
	// ProfileThrottle is the modulo applied to the tick's Unix timestamp
	// when the pool is between watermarks; replenishment fires on
	// timestamps congruent to 1. The exact cadence is a heuristic knob.
	ProfileThrottle int `mapstructure:"profile_throttle"`
	// ProfileConcurrency is the concurrency hint handed to the acquirer.
	ProfileConcurrency int `mapstructure:"profile_concurrency"`
	// TickInterval is an optional pause between ticks. Zero means none.
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// DefaultArgs returns the standalone defaults.
func DefaultArgs() Args {
	return Args{
		ReadyBatch:           100,
		ReadyLowWater:        300,
		ReadyHighWater:       700,
		TaskBatch:            100,
		MinProfilesPerRound:  7,
		ResponseBatch:        100,
		ProfileLowWater:      3000,
		ProfileHighWater:     10000,
		ErrorFlushThreshold:  100,
		ResultFlushThreshold: 100,
		SkipSeed:             false,
		ProfileThrottle:      3,
		ProfileConcurrency:   7,
	}
}
