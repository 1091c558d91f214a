package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects Lambda identity, configuration, resources, and
// feature flags, then emits a single structured zerolog event summarising
// the cold-start state. Makes it possible to see exactly how a Lambda was
// configured when reading back a CloudWatch log stream.
type StartupLogger struct {
	name         string
	initDuration time.Duration

	dynamoTables  map[string]string
	ssmParams     map[string]string
	stateMachines map[string]string
	eventBuses    map[string]string
	features      map[string]bool
	config        map[string]string
}

// NewStartupLogger creates a StartupLogger for the given Lambda name
// (e.g. "webhook-lambda", "actions-lambda").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:          name,
		dynamoTables:  make(map[string]string),
		ssmParams:     make(map[string]string),
		stateMachines: make(map[string]string),
		eventBuses:    make(map[string]string),
		features:      make(map[string]bool),
		config:        make(map[string]string),
	}
}

// DynamoTable registers a DynamoDB table used by this Lambda.
func (s *StartupLogger) DynamoTable(label, name string) *StartupLogger {
	s.dynamoTables[label] = name
	return s
}

// SSMParam registers an SSM parameter path loaded by this Lambda.
// Only the path is logged, never the value.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	s.ssmParams[label] = path
	return s
}

// StateMachine registers a Step Functions state machine used by this Lambda.
func (s *StartupLogger) StateMachine(label, arn string) *StartupLogger {
	s.stateMachines[label] = arn
	return s
}

// EventBus registers an EventBridge bus this Lambda publishes to.
func (s *StartupLogger) EventBus(label, name string) *StartupLogger {
	s.eventBuses[label] = name
	return s
}

// Feature registers a boolean feature flag (e.g. "stateMachine").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long the init() function took to complete.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset. Useful for resolving
// SSM parameter paths that may be overridden via environment variables.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	lambdaDict := zerolog.Dict().
		Str("name", s.name).
		Str("functionName", os.Getenv("AWS_LAMBDA_FUNCTION_NAME")).
		Str("version", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
		Str("region", os.Getenv("AWS_REGION")).
		Str("memoryMB", os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("PAGEBRIDGE_LOG_LEVEL"))

	evt = evt.Dict("lambda", lambdaDict)

	resources := zerolog.Dict()
	hasResources := false

	if len(s.dynamoTables) > 0 {
		resources = resources.Dict("dynamoTables", dictFromMap(s.dynamoTables))
		hasResources = true
	}
	if len(s.ssmParams) > 0 {
		resources = resources.Dict("ssmParams", dictFromMap(s.ssmParams))
		hasResources = true
	}
	if len(s.stateMachines) > 0 {
		resources = resources.Dict("stateMachines", dictFromMap(s.stateMachines))
		hasResources = true
	}
	if len(s.eventBuses) > 0 {
		resources = resources.Dict("eventBuses", dictFromMap(s.eventBuses))
		hasResources = true
	}

	if hasResources {
		evt = evt.Dict("resources", resources)
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Lambda cold start complete")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
