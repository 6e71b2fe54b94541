package inference

import (
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Provider names an ONNX Runtime execution provider
type Provider string

const (
	ProviderCPU    Provider = "cpu"
	ProviderCUDA   Provider = "cuda"
	ProviderCoreML Provider = "coreml"
)

// ParseProviders converts user supplied names into providers, keeping order and dropping duplicates
func ParseProviders(names []string) ([]Provider, error) {
	seen := make(map[Provider]bool, len(names))
	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		p := Provider(strings.ToLower(strings.TrimSpace(name)))
		switch p {
		case ProviderCPU, ProviderCUDA, ProviderCoreML:
		default:
			return nil, fmt.Errorf("unknown execution provider %q (use cpu, cuda or coreml)", name)
		}
		if !seen[p] {
			seen[p] = true
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		providers = append(providers, ProviderCPU)
	}
	return providers, nil
}

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment. Repeated calls are no-ops.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	provider    Provider
	inputNames  []string
	outputNames []string
}

// NewSession creates an inference session, binding the first provider in preference order
// that the runtime accepts. The CPU provider is always available as the last resort.
func NewSession(log *zap.Logger, modelPath string, inputNames, outputNames []string, providers []Provider) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	bound := bindProvider(log, options, modelPath, providers)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	log.Debug("session created", zap.String("model", modelPath), zap.String("provider", string(bound)))

	return &Session{
		session:     session,
		modelPath:   modelPath,
		provider:    bound,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

func bindProvider(log *zap.Logger, options *ort.SessionOptions, modelPath string, providers []Provider) Provider {
	for _, p := range providers {
		var err error
		switch p {
		case ProviderCUDA:
			err = appendCUDA(options)
		case ProviderCoreML:
			// Flag 0 = default settings, use Neural Engine + GPU
			err = options.AppendExecutionProviderCoreML(0)
		case ProviderCPU:
			return ProviderCPU
		}
		if err == nil {
			return p
		}
		log.Warn("execution provider unavailable, trying next",
			zap.String("model", modelPath), zap.String("provider", string(p)), zap.Error(err))
	}
	return ProviderCPU
}

func appendCUDA(options *ort.SessionOptions) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOptions.Destroy()
	return options.AppendExecutionProviderCUDA(cudaOptions)
}

// Provider returns the execution provider the session is bound to
func (s *Session) Provider() Provider {
	return s.provider
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	data := make([]T, size)
	return ort.NewTensor(ort.NewShape(shape...), data)
}
