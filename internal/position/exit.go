package position

import (
	"time"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/domain"
)

// EvaluateExit returns the exit reason for p at price, checking take-profit,
// then stop-loss, then timeout. ok is false when the position should be held.
func EvaluateExit(p domain.Position, price float64, now time.Time, st config.Settings) (reason string, ok bool) {
	change := p.PercentChange(price)
	switch {
	case change >= st.TPPercent:
		return domain.ExitReasonTakeProfit, true
	case change <= st.SLPercent:
		return domain.ExitReasonStopLoss, true
	case p.Held(now) >= st.Timeout():
		return domain.ExitReasonTimeout, true
	}
	return "", false
}
