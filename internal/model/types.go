package model

type Metadata struct {
	InputName   string   `json:"input_name" yaml:"input_name"`
	OutputName  string   `json:"output_name" yaml:"output_name"`
	InputShape  []int64  `json:"input_shape" yaml:"input_shape"`
	OutputShape []int64  `json:"output_shape" yaml:"output_shape"`
	Classes     []string `json:"classes" yaml:"classes"`
	ImageSize   int      `json:"image_size" yaml:"image_size"`
	// OutputIsLogits makes Predict apply softmax before reporting confidences.
	OutputIsLogits bool `json:"output_is_logits" yaml:"output_is_logits"`
}

type PredictionRequest struct {
	Image string `json:"image"`
}

type PredictionResponse struct {
	Prediction    int       `json:"prediction"`
	Confidence    float32   `json:"confidence"`
	Probabilities []float32 `json:"probabilities"`
}
