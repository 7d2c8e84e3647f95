package manager

// Key names from spec §6's shared-store table. Only the manager may
// write any of these (spec §3 "RoutingSets ... are exclusively owned
// by the manager").
const (
	keySMTPAlerterMetrics       = "analyzer.smtp_alerter_metrics"
	keyNonSMTPAlerterMetrics    = "analyzer.non_smtp_alerter_metrics"
	keyAETSMTPAlerterMetrics    = "aet.analyzer.smtp_alerter_metrics"
	keyAETNonSMTPAlerterMetrics = "aet.analyzer.non_smtp_alerter_metrics"
	keyMirageUniqueMetrics      = "mirage.unique_metrics"
	keyMirageExpirationTimes    = "mirage.hash_key.metrics_expiration_times"
	keyMirageResolutions        = "mirage.hash_key.metrics_resolutions"
	keyAnalyzerZeroFillMetrics  = "analyzer.flux_zero_fill_metrics"
	keyFluxZeroFillMetrics      = "flux.zero_fill_metrics"
	keyLastAllAlerts            = "analyzer.last_all_alerts"
	keyLowPriorityLastAnalyzed  = "analyzer.low_priority_metrics.last_analyzed_timestamp"
	keyMiragePeriodicCheckTimes = "mirage.hash_key.periodic_check_times"

	keyManagerLivenessGuard  = "analyzer.metrics_manager.last_run_timestamp"
	keyZeroFillLivenessGuard = "analyzer.metrics_manager.zero_fill_last_run_timestamp"

	newPrefix = "new_"
	oldSuffix = ".old"
)
