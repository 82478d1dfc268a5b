package embedding

import (
	"math"
	"testing"

	"github.com/rcliao/selfedit/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 2, 3}, Vector{1, 2, 3}, 0.0, 0.001},
		{"unit apart", Vector{0, 0}, Vector{1, 0}, 1.0, 0.001},
		{"pythagorean", Vector{0, 0}, Vector{3, 4}, 5.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("EuclideanDistance(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.expected)
			}
		})
	}

	if d := EuclideanDistance(Vector{1, 0}, Vector{1, 0, 0}); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for mismatched lengths, got %f", d)
	}
}

func TestNewFromConfig_Disabled(t *testing.T) {
	e, err := NewFromConfig(config.EmbeddingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e != nil {
		t.Error("expected nil embedder when no provider configured")
	}
}

func TestNewFromConfig_UnknownProvider(t *testing.T) {
	_, err := NewFromConfig(config.EmbeddingConfig{Provider: "faiss"})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}
