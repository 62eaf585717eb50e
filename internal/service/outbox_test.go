package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"ledger-core/internal/model"
	"ledger-core/pkg/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settleCall struct {
	txHash  string
	updates map[string]interface{}
	topic   string
	key     string
	payload interface{}
}

type fakeJournalStore struct {
	created   []model.TxRecord
	settled   []settleCall
	createErr error
	settleErr error
}

func (s *fakeJournalStore) CreateTxRecord(_ context.Context, rec *model.TxRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, *rec)
	return nil
}

func (s *fakeJournalStore) SettleTxRecord(_ context.Context, txHash string, updates map[string]interface{}, topic, key string, payload interface{}) error {
	if s.settleErr != nil {
		return s.settleErr
	}
	s.settled = append(s.settled, settleCall{txHash: txHash, updates: updates, topic: topic, key: key, payload: payload})
	return nil
}

func newTestJournal(store journalStore) *JournalService {
	j := newJournalService(store, "ledger_events_receipt")
	j.now = func() time.Time { return fixedNow }
	return j
}

var (
	journalAccount = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	journalTx      = common.HexToHash("0xabc")
)

func TestJournalBroadcastInsertsRecordOnly(t *testing.T) {
	store := &fakeJournalStore{}
	j := newTestJournal(store)

	j.Record(context.Background(), ledger.JournalEntry{
		Account: journalAccount, Method: "addProduct", Nonce: 3, TxHash: journalTx, Stage: ledger.StageBroadcast,
	})

	require.Len(t, store.created, 1)
	rec := store.created[0]
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", rec.Account)
	assert.Equal(t, "addProduct", rec.Method)
	assert.Equal(t, uint64(3), rec.Nonce)
	assert.Equal(t, journalTx.Hex(), rec.TxHash)
	assert.Equal(t, model.TxStatusBroadcast, rec.Status)
	assert.Empty(t, store.settled, "no outbox message until the transaction settles")
}

func TestJournalSettleWritesStatusAndOutboxTogether(t *testing.T) {
	store := &fakeJournalStore{}
	j := newTestJournal(store)

	j.Record(context.Background(), ledger.JournalEntry{
		Account: journalAccount, Method: "addProduct", Nonce: 3, TxHash: journalTx, Stage: ledger.StageConfirmed,
		Receipt: &ledger.Receipt{GasUsed: 21000, BlockNumber: big.NewInt(12)},
	})

	require.Len(t, store.settled, 1)
	call := store.settled[0]
	assert.Equal(t, journalTx.Hex(), call.txHash)
	assert.Equal(t, "ledger_events_receipt", call.topic)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", call.key, "events are partitioned by account")
	assert.Equal(t, "CONFIRMED", call.updates["status"])
	assert.Equal(t, uint64(12), *call.updates["block_number"].(*uint64))
	assert.Equal(t, uint64(21000), *call.updates["gas_used"].(*uint64))

	event, ok := call.payload.(ReceiptEvent)
	require.True(t, ok)
	assert.Equal(t, "CONFIRMED", event.Stage)
	assert.Equal(t, fixedNow, event.At)
	assert.Empty(t, store.created)
}

func TestJournalTimeoutCarriesError(t *testing.T) {
	store := &fakeJournalStore{}
	j := newTestJournal(store)

	j.Record(context.Background(), ledger.JournalEntry{
		Account: journalAccount, Method: "buyProduct", Nonce: 0, TxHash: journalTx, Stage: ledger.StageTimeout,
		Err: errors.New("not confirmed within 2m0s"),
	})

	require.Len(t, store.settled, 1)
	assert.Equal(t, "TIMEOUT", store.settled[0].updates["status"])
	assert.Equal(t, "not confirmed within 2m0s", store.settled[0].updates["error"])
	assert.Nil(t, store.settled[0].updates["block_number"])
}

func TestJournalStoreFailureDoesNotPanic(t *testing.T) {
	store := &fakeJournalStore{createErr: errors.New("db down"), settleErr: errors.New("db down")}
	j := newTestJournal(store)

	assert.NotPanics(t, func() {
		j.Record(context.Background(), ledger.JournalEntry{Account: journalAccount, TxHash: journalTx, Stage: ledger.StageBroadcast})
		j.Record(context.Background(), ledger.JournalEntry{Account: journalAccount, TxHash: journalTx, Stage: ledger.StageDropped})
	})
}

type fakeOutboxStore struct {
	mu       sync.Mutex
	messages []model.OutboxMessage
	queryErr error
}

func (s *fakeOutboxStore) add(key, payload string) {
	s.messages = append(s.messages, model.OutboxMessage{
		ID: uint64(len(s.messages) + 1), Topic: "ledger_events_receipt", Key: key, Payload: []byte(payload), Status: "PENDING",
	})
}

func (s *fakeOutboxStore) PendingOutbox(_ context.Context, limit int) ([]model.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []model.OutboxMessage
	for _, m := range s.messages {
		if m.Status == "PENDING" && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeOutboxStore) MarkOutboxSent(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Status = "SENT"
		}
	}
	return nil
}

func (s *fakeOutboxStore) status() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Status
	}
	return out
}

// flakyProducer 第 failAt 次发送失败 (从 1 开始计数)，之后恢复
type flakyProducer struct {
	mu        sync.Mutex
	calls     int
	failAt    int
	published []string
}

func (p *flakyProducer) Publish(_ context.Context, _ string, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == p.failAt {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, key+":"+string(payload))
	return nil
}

func TestRelayStopsBatchAtFirstPublishError(t *testing.T) {
	store := &fakeOutboxStore{}
	store.add("0xa", "1")
	store.add("0xa", "2")
	store.add("0xb", "3")
	producer := &flakyProducer{failAt: 2}
	relay := newRelayService(store, producer)

	relay.processPendingMessages(context.Background())
	assert.Equal(t, []string{"0xa:1"}, producer.published)
	assert.Equal(t, []string{"SENT", "PENDING", "PENDING"}, store.status(), "messages after the failure stay pending")

	// 下一轮从失败的那条继续，顺序不变
	relay.processPendingMessages(context.Background())
	assert.Equal(t, []string{"0xa:1", "0xa:2", "0xb:3"}, producer.published)
	assert.Equal(t, []string{"SENT", "SENT", "SENT"}, store.status())
}

func TestRelayRespectsBatchSize(t *testing.T) {
	store := &fakeOutboxStore{}
	for i := 0; i < 5; i++ {
		store.add("0xa", "x")
	}
	producer := &flakyProducer{}
	relay := newRelayService(store, producer)
	relay.batch = 2

	relay.processPendingMessages(context.Background())
	assert.Len(t, producer.published, 2)
	assert.Equal(t, []string{"SENT", "SENT", "PENDING", "PENDING", "PENDING"}, store.status())
}

func TestRelayQueryFailurePublishesNothing(t *testing.T) {
	store := &fakeOutboxStore{queryErr: errors.New("db down")}
	producer := &flakyProducer{}

	newRelayService(store, producer).processPendingMessages(context.Background())
	assert.Zero(t, producer.calls)
}

func TestRelayStartStopsWithContext(t *testing.T) {
	store := &fakeOutboxStore{}
	store.add("0xa", "1")
	producer := &flakyProducer{}
	relay := newRelayService(store, producer)
	relay.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return store.status()[0] == "SENT"
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestReceiptEventPayloadShape(t *testing.T) {
	block := uint64(9)
	raw, err := json.Marshal(ReceiptEvent{Account: "0xa", Stage: "CONFIRMED", BlockNumber: &block, At: fixedNow})
	require.NoError(t, err)
	assert.JSONEq(t, `{"account":"0xa","method":"","nonce":0,"txHash":"","stage":"CONFIRMED","blockNumber":9,"at":"2024-05-01T12:30:00Z"}`, string(raw))
}
