package ports

// Metric names understood by Observability implementations.
const (
	MetricSamplesDelivered = "wattflow_samples_delivered_total"
	MetricSensorErrors     = "wattflow_sensor_errors_total"
	MetricMarkers          = "wattflow_markers_total"
	MetricOutputRecords    = "wattflow_output_records_total"
	MetricOutputDropped    = "wattflow_output_dropped_total"

	MetricSensorsAttached = "wattflow_sensors_attached"
	MetricSensorsDegraded = "wattflow_sensors_degraded"
	MetricOutputQueueLen  = "wattflow_output_queue_length"

	MetricSampleDuration = "wattflow_sample_duration_seconds"
	MetricSinkWrite      = "wattflow_sink_write_seconds"
)
