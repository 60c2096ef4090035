package observability

const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"
	AttrResponseID       = "response.id"
	AttrModel            = "llm.model"
	AttrToolName         = "tool.name"
	AttrVectorStoreIDs   = "search.vector_store_ids"
	AttrErrorType        = "error.type"

	SpanHTTPRequest   = "http.request"
	SpanResponse      = "responses.create"
	SpanLLMRequest    = "llm.request"
	SpanToolExecution = "tool.execution"
	SpanSearch        = "search.hybrid"
	SpanAgenticSearch = "search.agentic"

	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
	ExporterStdout   = "stdout"

	DefaultServiceName  = "openresponses"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultSampleRate   = 1.0
	DefaultMetricsPath  = "/metrics"
)
