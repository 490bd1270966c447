package authd

import "sync/atomic"

// MetricID indexes the engine's counter registry.
type MetricID uint16

const (
	// MetricTokenUserSuccess counts issued user tokens.
	MetricTokenUserSuccess MetricID = iota
	// MetricTokenUserFailure counts failed user grants.
	MetricTokenUserFailure
	// MetricTokenClientSuccess counts issued client tokens.
	MetricTokenClientSuccess
	// MetricTokenClientFailure counts failed client grants.
	MetricTokenClientFailure
	// MetricTokenRefreshSuccess counts successful refresh exchanges.
	MetricTokenRefreshSuccess
	// MetricTokenRefreshFailure counts failed refresh exchanges.
	MetricTokenRefreshFailure
	// MetricRevokeSuccess counts revoked refresh tokens.
	MetricRevokeSuccess
	// MetricRevokeFailure counts failed revocations.
	MetricRevokeFailure
	// MetricVerifySuccess counts tokens that verified cleanly.
	MetricVerifySuccess
	// MetricVerifyExpired counts expired tokens presented for verification.
	MetricVerifyExpired
	// MetricVerifyInvalid counts tokens that failed verification outright.
	MetricVerifyInvalid
	// MetricRequestRejected counts requests rejected before dispatch.
	MetricRequestRejected

	metricCount
)

var metricNames = [metricCount]string{
	MetricTokenUserSuccess:    "authd_token_user_success_total",
	MetricTokenUserFailure:    "authd_token_user_failure_total",
	MetricTokenClientSuccess:  "authd_token_client_success_total",
	MetricTokenClientFailure:  "authd_token_client_failure_total",
	MetricTokenRefreshSuccess: "authd_token_refresh_success_total",
	MetricTokenRefreshFailure: "authd_token_refresh_failure_total",
	MetricRevokeSuccess:       "authd_revoke_success_total",
	MetricRevokeFailure:       "authd_revoke_failure_total",
	MetricVerifySuccess:       "authd_verify_success_total",
	MetricVerifyExpired:       "authd_verify_expired_total",
	MetricVerifyInvalid:       "authd_verify_invalid_total",
	MetricRequestRejected:     "authd_request_rejected_total",
}

var metricHelp = [metricCount]string{
	MetricTokenUserSuccess:    "Issued user access tokens.",
	MetricTokenUserFailure:    "Failed user grants.",
	MetricTokenClientSuccess:  "Issued client access tokens.",
	MetricTokenClientFailure:  "Failed client grants.",
	MetricTokenRefreshSuccess: "Successful refresh token exchanges.",
	MetricTokenRefreshFailure: "Failed refresh token exchanges.",
	MetricRevokeSuccess:       "Revoked refresh tokens.",
	MetricRevokeFailure:       "Failed revocations.",
	MetricVerifySuccess:       "Tokens that verified cleanly.",
	MetricVerifyExpired:       "Expired tokens presented for verification.",
	MetricVerifyInvalid:       "Tokens that failed verification outright.",
	MetricRequestRejected:     "Requests rejected before grant dispatch.",
}

// MetricName returns the exposition name for id, or empty for unknown ids.
func MetricName(id MetricID) string {
	if id >= metricCount {
		return ""
	}
	return metricNames[id]
}

// MetricHelp returns the exposition help text for id, or empty for unknown
// ids.
func MetricHelp(id MetricID) string {
	if id >= metricCount {
		return ""
	}
	return metricHelp[id]
}

// MetricIDs lists every registered metric in exposition order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

type metricsRegistry struct {
	counters [metricCount]atomic.Uint64
}

func (m *metricsRegistry) inc(id MetricID) {
	if id < metricCount {
		m.counters[id].Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of every engine counter plus the
// entity cache hit/miss counters.
type MetricsSnapshot struct {
	Counters    map[MetricID]uint64
	CacheHits   uint64
	CacheMisses uint64
}

func (m *metricsRegistry) snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
