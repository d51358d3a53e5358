package a

type MetricDatum struct {
	MetricName string
	Value      float64
}

const deployed = "lambda deploy"

func records() []MetricDatum {
	return []MetricDatum{
		{MetricName: "lambda_deploy", Value: 1},
		{MetricName: "s3:upload.bytes", Value: 2},
		{MetricName: "project open", Value: 1}, // want `metric name "project open" will be sent as "projectopen"`
		{MetricName: "!!!", Value: 1},          // want `metric name "!!!" is empty after sanitizing and will be dropped`
		{MetricName: deployed, Value: 1},       // want `metric name "lambda deploy" will be sent as "lambdadeploy"`
	}
}

func dynamic(name string) *MetricDatum {
	return &MetricDatum{MetricName: name}
}
