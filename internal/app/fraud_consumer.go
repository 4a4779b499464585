package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/transfa/wallet-service/internal/domain"
	"github.com/transfa/wallet-service/internal/store"
)

const (
	largeTransactionThreshold = 10000
	velocityWindow            = 10 * time.Minute
	velocityThreshold         = 5
	rapidWithdrawalWindow     = 5 * time.Minute
)

// FraudConsumer is C8: it consumes the same wallet event stream as the
// projection consumer on an independent queue, maintains a sliding window
// of recent activity per wallet, and evaluates the three rules from
// spec.md §4.8.
type FraudConsumer struct {
	fraud *store.FraudStore
}

// NewFraudConsumer wires the fraud-analytics store.
func NewFraudConsumer(fraud *store.FraudStore) *FraudConsumer {
	return &FraudConsumer{fraud: fraud}
}

// HandleMessage returns true to ack, false to dead-letter.
func (c *FraudConsumer) HandleMessage(body []byte) bool {
	var envelope busEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Printf("level=error component=fraud_consumer msg=\"malformed envelope\" err=%v", err)
		return false
	}

	eventType := domain.EventType(envelope.EventType)
	switch eventType {
	case domain.EventMoneyDeposited, domain.EventMoneyWithdrawn:
		return c.evaluate(eventType, envelope.Data)
	default:
		return true
	}
}

func (c *FraudConsumer) evaluate(eventType domain.EventType, raw json.RawMessage) bool {
	var data walletEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("level=error component=fraud_consumer msg=\"malformed wallet event data\" err=%v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.fraud.RecordEvent(ctx, domain.RecentEvent{
		WalletID:      data.WalletID,
		EventType:     eventType,
		Amount:        data.Amount,
		TransactionID: data.TransactionID,
		CreatedAt:     data.Timestamp,
	}); err != nil {
		log.Printf("level=error component=fraud_consumer wallet_id=%s msg=\"record recent event failed\" err=%v", data.WalletID, err)
		return false
	}

	for _, hit := range c.fireRules(ctx, eventType, data) {
		if err := c.applyAlert(ctx, hit, data, eventType, raw); err != nil {
			log.Printf("level=error component=fraud_consumer wallet_id=%s rule=%s msg=\"apply alert failed\" err=%v", data.WalletID, hit.RuleID, err)
			return false
		}
	}

	return true
}

type ruleHit struct {
	RuleID   string
	RuleName string
	Severity domain.RiskLevel
}

// fireRules evaluates all three rules in spec.md §4.8's table against the
// freshly recorded event and the wallet's recent history.
func (c *FraudConsumer) fireRules(ctx context.Context, eventType domain.EventType, data walletEventData) []ruleHit {
	var hits []ruleHit

	if data.Amount > largeTransactionThreshold {
		hits = append(hits, ruleHit{RuleID: "large-transaction", RuleName: "Large Transaction", Severity: domain.RiskHigh})
	}

	count, err := c.fraud.CountRecentEvents(ctx, data.WalletID, int(velocityWindow.Seconds()))
	if err != nil {
		log.Printf("level=error component=fraud_consumer wallet_id=%s msg=\"velocity count failed\" err=%v", data.WalletID, err)
	} else if count > velocityThreshold {
		hits = append(hits, ruleHit{RuleID: "high-velocity", RuleName: "High Velocity", Severity: domain.RiskMedium})
	}

	if eventType == domain.EventMoneyWithdrawn {
		depositCount, err := c.fraud.CountRecentEventsByType(ctx, data.WalletID, domain.EventMoneyDeposited, int(rapidWithdrawalWindow.Seconds()))
		if err != nil {
			log.Printf("level=error component=fraud_consumer wallet_id=%s msg=\"rapid withdrawal check failed\" err=%v", data.WalletID, err)
		} else if depositCount > 0 {
			hits = append(hits, ruleHit{RuleID: "rapid-withdrawal", RuleName: "Rapid Withdrawal After Deposit", Severity: domain.RiskHigh})
		}
	}

	return hits
}

// applyAlert inserts the alert (idempotently, per the UNIQUE(transaction_id,
// rule_id) constraint) and only bumps the risk profile if the insert
// actually created a new row — a duplicate delivery must not double-count.
func (c *FraudConsumer) applyAlert(ctx context.Context, hit ruleHit, data walletEventData, eventType domain.EventType, payload json.RawMessage) error {
	alert := domain.Alert{
		ID:            store.NewAlertID(),
		WalletID:      data.WalletID,
		RuleID:        hit.RuleID,
		RuleName:      hit.RuleName,
		Severity:      hit.Severity,
		TransactionID: data.TransactionID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}

	inserted, err := c.fraud.InsertAlert(ctx, alert)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if _, err := c.fraud.UpsertRiskProfile(ctx, data.WalletID, domain.ScoreDelta(hit.Severity)); err != nil {
		return err
	}
	return nil
}
