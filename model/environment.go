package model

import "runtime"

// ProductEnvironment describes the product sending telemetry.
// It is attached to every outbound request.
type ProductEnvironment struct {
	AWSProduct           string
	AWSProductVersion    string
	OS                   string
	OSArchitecture       string
	OSVersion            string
	ParentProduct        string
	ParentProductVersion string
}

// NewProductEnvironment fills in the running platform.
func NewProductEnvironment(product, version, parent, parentVersion, osVersion string) ProductEnvironment {
	return ProductEnvironment{
		AWSProduct:           product,
		AWSProductVersion:    version,
		OS:                   runtime.GOOS,
		OSArchitecture:       runtime.GOARCH,
		OSVersion:            osVersion,
		ParentProduct:        parent,
		ParentProductVersion: parentVersion,
	}
}

// Sentiment of user feedback.
type Sentiment string

const (
	Positive Sentiment = "Positive"
	Negative Sentiment = "Negative"
)

// Valid reports whether s is a known sentiment.
func (s Sentiment) Valid() bool {
	return s == Positive || s == Negative
}
