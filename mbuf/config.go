package mbuf

import (
	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

// DefaultEnvPrefix is the prefix OptionsFromEnv expects for environment variables: MBUF_CHUNK_SIZE,
// MBUF_MEMORY_LIMIT and so on
const DefaultEnvPrefix = "MBUF"

type envOptions struct {
	ChunkSize         int  `envconfig:"CHUNK_SIZE" default:"16384"`
	MemoryLimit       int  `envconfig:"MEMORY_LIMIT" default:"0"`
	TrackActiveBlocks bool `envconfig:"TRACK_ACTIVE_BLOCKS"`
	CaptureProvenance bool `envconfig:"CAPTURE_PROVENANCE"`
	Synchronized      bool `envconfig:"SYNCHRONIZED"`
}

// OptionsFromEnv reads pool settings from the environment. prefix is prepended to each variable name
// with an underscore; an empty prefix selects DefaultEnvPrefix. Variables that are not set keep their
// defaults, so the returned options are always valid to pass to New unless the environment holds a
// bad chunk size or limit.
func OptionsFromEnv(prefix string) (CreateOptions, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var env envOptions
	err := envconfig.Process(prefix, &env)
	if err != nil {
		return CreateOptions{}, errors.Wrapf(err, "failed to read pool options from %s_* environment variables", prefix)
	}

	options := CreateOptions{
		ChunkSize:   env.ChunkSize,
		MemoryLimit: env.MemoryLimit,
	}

	if env.TrackActiveBlocks {
		options.Flags |= CreateTrackActiveBlocks
	}
	if env.CaptureProvenance {
		options.Flags |= CreateCaptureProvenance
	}
	if env.Synchronized {
		options.Flags |= CreateSynchronized
	}

	return options, nil
}
