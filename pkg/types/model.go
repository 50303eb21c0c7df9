package types

import "time"

// Framework is the training framework a model was exported from
type Framework string

const (
	FrameworkTensorFlow Framework = "tensorflow"
	FrameworkPyTorch    Framework = "pytorch"
	FrameworkONNX       Framework = "onnx"
	FrameworkSklearn    Framework = "sklearn"
	FrameworkXGBoost    Framework = "xgboost"
	FrameworkCustom     Framework = "custom"
)

// Technique is a model optimization method
type Technique string

const (
	TechniqueQuantization   Technique = "quantization"
	TechniquePruning        Technique = "pruning"
	TechniqueDistillation   Technique = "distillation"
	TechniqueOperatorFusion Technique = "operator_fusion"
)

// HardwareTarget is the accelerator class an optimized model was built for
type HardwareTarget string

const (
	HardwareCPU  HardwareTarget = "cpu"
	HardwareGPU  HardwareTarget = "gpu"
	HardwareTPU  HardwareTarget = "tpu"
	HardwareEdge HardwareTarget = "edge"
)

// Model is a registered model artifact
type Model struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Framework   Framework `json:"framework"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	StoragePath string    `json:"storage_path"`
	Metadata    Tags      `json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PerformanceDelta is the measured effect of an optimization, in percent
type PerformanceDelta struct {
	SizeReduction    float64 `json:"size_reduction_percentage"`
	LatencyReduction float64 `json:"latency_reduction_percentage"`
	AccuracyChange   float64 `json:"accuracy_change_percentage"`
}

// EstimatedDelta returns the published estimate for a technique
func EstimatedDelta(t Technique) PerformanceDelta {
	switch t {
	case TechniqueQuantization:
		return PerformanceDelta{SizeReduction: 75, LatencyReduction: 40, AccuracyChange: -2}
	case TechniquePruning:
		return PerformanceDelta{SizeReduction: 50, LatencyReduction: 20, AccuracyChange: -1}
	case TechniqueDistillation:
		return PerformanceDelta{SizeReduction: 90, LatencyReduction: 80, AccuracyChange: -5}
	case TechniqueOperatorFusion:
		return PerformanceDelta{LatencyReduction: 15}
	}
	return PerformanceDelta{}
}

// OptimizedModel is a transformed variant of a registered model
type OptimizedModel struct {
	ID              string           `json:"id"`
	OriginalModelID string           `json:"original_model_id"`
	Technique       Technique        `json:"technique"`
	HardwareTarget  HardwareTarget   `json:"hardware_target"`
	StoragePath     string           `json:"storage_path"`
	Delta           PerformanceDelta `json:"delta"`
	Metadata        Tags             `json:"metadata"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ArtifactKey returns the access-tracking key of an optimized model
func (m *OptimizedModel) ArtifactKey() string {
	return "optimized_" + m.ID
}
