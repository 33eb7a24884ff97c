package probe

import "github.com/hamed0406/servicepoller/internal/domain"

// healthyBody is the exact payload a live service must answer with.
const healthyBody = "OK"

// Resolve maps an outcome to OK or FAIL. It never returns UNKNOWN.
func Resolve(o Outcome) domain.Status {
	if o.Err != nil {
		return domain.StatusFail
	}
	if o.StatusCode < 200 || o.StatusCode > 299 {
		return domain.StatusFail
	}
	if string(o.Body) != healthyBody {
		return domain.StatusFail
	}
	return domain.StatusOK
}
