package model

// MaxFeedbackCommentLength is the longest comment the service accepts, in runes.
const MaxFeedbackCommentLength = 2000

// MaxMetricDataPerRequest is the service limit on data entries per request.
const MaxMetricDataPerRequest = 20

// MetricDatumPayload is the wire form of a MetricDatum.
type MetricDatumPayload struct {
	MetricName     string          `json:"MetricName"`
	EpochTimestamp int64           `json:"EpochTimestamp"`
	Unit           Unit            `json:"Unit"`
	Value          float64         `json:"Value"`
	Passive        bool            `json:"Passive"`
	Metadata       []MetadataEntry `json:"Metadata,omitempty"`
}

// PostMetricsRequest is the body of a metrics submission.
type PostMetricsRequest struct {
	AWSProduct           string               `json:"AWSProduct"`
	AWSProductVersion    string               `json:"AWSProductVersion"`
	ClientID             string               `json:"ClientID"`
	OS                   string               `json:"OS,omitempty"`
	OSArchitecture       string               `json:"OSArchitecture,omitempty"`
	OSVersion            string               `json:"OSVersion,omitempty"`
	ParentProduct        string               `json:"ParentProduct,omitempty"`
	ParentProductVersion string               `json:"ParentProductVersion,omitempty"`
	MetricData           []MetricDatumPayload `json:"MetricData"`
}

// PostFeedbackRequest is the body of a feedback submission.
type PostFeedbackRequest struct {
	AWSProduct           string          `json:"AWSProduct"`
	AWSProductVersion    string          `json:"AWSProductVersion"`
	OS                   string          `json:"OS,omitempty"`
	OSVersion            string          `json:"OSVersion,omitempty"`
	ParentProduct        string          `json:"ParentProduct,omitempty"`
	ParentProductVersion string          `json:"ParentProductVersion,omitempty"`
	Sentiment            Sentiment       `json:"Sentiment"`
	Comment              string          `json:"Comment"`
	Metadata             []MetadataEntry `json:"Metadata,omitempty"`
}

// NewPostMetricsRequest flattens batches into a single request.
func NewPostMetricsRequest(env ProductEnvironment, clientID string, batch []Metrics) PostMetricsRequest {
	req := PostMetricsRequest{
		AWSProduct:           env.AWSProduct,
		AWSProductVersion:    env.AWSProductVersion,
		ClientID:             clientID,
		OS:                   env.OS,
		OSArchitecture:       env.OSArchitecture,
		OSVersion:            env.OSVersion,
		ParentProduct:        env.ParentProduct,
		ParentProductVersion: env.ParentProductVersion,
	}
	for i := range batch {
		ts := batch[i].EpochMillis()
		for _, d := range batch[i].Data {
			req.MetricData = append(req.MetricData, MetricDatumPayload{
				MetricName:     d.MetricName,
				EpochTimestamp: ts,
				Unit:           d.Unit,
				Value:          d.Value,
				Passive:        d.Passive,
				Metadata:       d.Metadata,
			})
		}
	}
	return req
}

// NewPostFeedbackRequest builds a feedback request.
func NewPostFeedbackRequest(env ProductEnvironment, sentiment Sentiment, comment string, metadata []MetadataEntry) PostFeedbackRequest {
	return PostFeedbackRequest{
		AWSProduct:           env.AWSProduct,
		AWSProductVersion:    env.AWSProductVersion,
		OS:                   env.OS,
		OSVersion:            env.OSVersion,
		ParentProduct:        env.ParentProduct,
		ParentProductVersion: env.ParentProductVersion,
		Sentiment:            sentiment,
		Comment:              comment,
		Metadata:             metadata,
	}
}
