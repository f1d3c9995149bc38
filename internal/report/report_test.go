package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/notify"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func btcOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Symbol:     "BTCUSD",
		BuySource:  "coingecko",
		BuyPrice:   d("61234.5"),
		SellSource: "binance",
		SellPrice:  d("61456.78"),
		SpreadPct:  d("0.3630060668087414"),
	}
}

func sampleCycle(id string, start time.Time, opps ...domain.ArbitrageOpportunity) domain.CycleResult {
	return domain.CycleResult{
		ID:          id,
		StartedAt:   start,
		CompletedAt: start.Add(time.Second),
		Prices: map[domain.Symbol][]domain.PriceRecord{
			"BTCUSD": {
				{Source: "coingecko", Symbol: "BTCUSD", Price: d("61234.5"), ObservedAt: start},
				{Source: "binance", Symbol: "BTCUSD", Price: d("61456.78"), Volume24h: d("12.5"), ObservedAt: start},
			},
		},
		Opportunities: opps,
		Sources:       map[string]domain.SourceStats{"binance": {Attempted: 1, Succeeded: 1}},
	}
}

func TestFormatOpportunity(t *testing.T) {
	got := FormatOpportunity(btcOpportunity())
	want := "ARBITRAGE BTCUSD: buy coingecko @ 61234.50, sell binance @ 61456.78, spread 0.36%"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
	small := domain.ArbitrageOpportunity{Symbol: "SHIBUSD", BuySource: "a", BuyPrice: d("0.00001234"), SellSource: "b", SellPrice: d("0.0000125"), SpreadPct: d("1.2966")}
	if got := FormatOpportunity(small); !strings.Contains(got, "@ 0.00001234") {
		t.Fatalf("sub-unit prices must keep precision: %q", got)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := sink.Report(context.Background(), sampleCycle("c1", t0, btcOpportunity())); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line per opportunity, got %d", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(entry["msg"].(string), "ARBITRAGE BTCUSD") || entry["cycle_id"] != "c1" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestCSVSinkAppendsAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "opportunities.csv")
	pricesPath := filepath.Join(dir, "prices.csv")
	sink := NewCSVSink(path, pricesPath)
	ctx := context.Background()

	eth := domain.ArbitrageOpportunity{Symbol: "ETHUSD", BuySource: "a", BuyPrice: d("100"), SellSource: "b", SellPrice: d("101"), SpreadPct: d("1")}
	if err := sink.Report(ctx, sampleCycle("c1", t0, btcOpportunity())); err != nil {
		t.Fatal(err)
	}
	if err := sink.Report(ctx, sampleCycle("c2", t0.Add(time.Hour), eth)); err != nil {
		t.Fatal(err)
	}
	if err := sink.Report(ctx, sampleCycle("c3", t0.Add(2*time.Hour))); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), raw)
	}
	if lines[0] != "timestamp,symbol,buy_exchange,sell_exchange,buy_price,sell_price,spread_pct" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "2024-05-01T12:00:00.000Z,BTCUSD,coingecko,binance,61234.5,61456.78,0.3630" {
		t.Fatalf("row = %q", lines[1])
	}

	all, err := sink.ListSince(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Symbol != "ETHUSD" || !all[1].RecordedAt.Equal(t0) {
		t.Fatalf("unexpected history %+v", all)
	}

	recent, _ := sink.ListSince(ctx, t0.Add(30*time.Minute), 0)
	if len(recent) != 1 || recent[0].Symbol != "ETHUSD" {
		t.Fatalf("window filter failed: %+v", recent)
	}

	stats, err := sink.Stats(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalOpportunities != 2 || !stats.MaxSpread.Equal(d("1")) {
		t.Fatalf("stats %+v", stats)
	}

	prices, err := os.ReadFile(pricesPath)
	if err != nil {
		t.Fatal(err)
	}
	priceLines := strings.Split(strings.TrimSpace(string(prices)), "\n")
	if len(priceLines) != 7 || priceLines[0] != "timestamp,source,symbol,price,volume_24h" {
		t.Fatalf("unexpected prices file:\n%s", prices)
	}
}

func TestCSVSinkMissingFileIsEmptyHistory(t *testing.T) {
	sink := NewCSVSink(filepath.Join(t.TempDir(), "none.csv"), "")
	got, err := sink.ListSince(context.Background(), time.Time{}, 10)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

type fakeOppStore struct {
	domain.OpportunityStore
	inserted []domain.RecordedOpportunity
	err      error
}

func (f *fakeOppStore) InsertBatch(ctx context.Context, opps []domain.RecordedOpportunity) error {
	f.inserted = append(f.inserted, opps...)
	return f.err
}

type fakeCycleStore struct {
	domain.CycleStore
	ids []string
}

func (f *fakeCycleStore) Insert(ctx context.Context, res domain.CycleResult) error {
	f.ids = append(f.ids, res.ID)
	return nil
}

func TestStoreSink(t *testing.T) {
	opps := &fakeOppStore{err: errors.New("db down")}
	cycles := &fakeCycleStore{}
	sink := &StoreSink{Opportunities: opps, Cycles: cycles}

	err := sink.Report(context.Background(), sampleCycle("c1", t0, btcOpportunity()))
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(cycles.ids) != 1 {
		t.Fatal("cycle row should be written even when opportunities fail")
	}
	if len(opps.inserted) != 1 || opps.inserted[0].CycleID != "c1" || !opps.inserted[0].RecordedAt.Equal(t0) {
		t.Fatalf("unexpected inserted %+v", opps.inserted)
	}
}

type fakeBus struct {
	domain.SignalBus
	published map[string]int
	streamed  int
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if !json.Valid(payload) {
		return errors.New("invalid json")
	}
	f.published[channel]++
	return nil
}

func (f *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	f.streamed++
	return nil
}

type fakeCache struct{ n int }

func (f *fakeCache) SetPrices(ctx context.Context, recs []domain.PriceRecord) error {
	f.n += len(recs)
	return nil
}

func (f *fakeCache) GetPrices(ctx context.Context, s domain.Symbol) ([]domain.PriceRecord, error) {
	return nil, nil
}

func TestBusSink(t *testing.T) {
	bus := &fakeBus{published: map[string]int{}}
	cache := &fakeCache{}
	sink := &BusSink{Cache: cache, Bus: bus}

	if err := sink.Report(context.Background(), sampleCycle("c1", t0, btcOpportunity())); err != nil {
		t.Fatal(err)
	}
	if cache.n != 2 {
		t.Fatalf("cached %d prices, want 2", cache.n)
	}
	if bus.published[domain.ChannelCycles] != 1 || bus.published[domain.ChannelOpportunities] != 1 || bus.streamed != 1 {
		t.Fatalf("published %v streamed %d", bus.published, bus.streamed)
	}
}

type fakeBroadcaster struct{ channels []string }

func (f *fakeBroadcaster) Broadcast(channel string, data []byte) {
	f.channels = append(f.channels, channel)
}

func TestPushSink(t *testing.T) {
	b := &fakeBroadcaster{}
	sink := &PushSink{Target: b}
	if err := sink.Report(context.Background(), sampleCycle("c1", t0, btcOpportunity())); err != nil {
		t.Fatal(err)
	}
	if len(b.channels) != 2 || b.channels[0] != domain.ChannelCycles {
		t.Fatalf("broadcast %v", b.channels)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)

	if err := sink.Report(context.Background(), sampleCycle("c0", t0)); err != nil || len(w.msgs) != 0 {
		t.Fatalf("empty cycle should publish nothing: %v %d", err, len(w.msgs))
	}
	if err := sink.Report(context.Background(), sampleCycle("c1", t0, btcOpportunity())); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "BTCUSD" {
		t.Fatalf("messages %+v", w.msgs)
	}
	var got domain.RecordedOpportunity
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.CycleID != "c1" || got.BuySource != "coingecko" {
		t.Fatalf("decoded %+v", got)
	}
	_ = sink.Close()
	if !w.closed {
		t.Fatal("writer not closed")
	}
}

type fakeNotifier struct {
	events   []string
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.events = append(f.events, event)
	f.messages = append(f.messages, message)
	return nil
}

func TestNotifySink(t *testing.T) {
	n := &fakeNotifier{}
	sink := NewNotifySink(n, d("0.5"))
	ctx := context.Background()

	// 0.363% is below the alert threshold.
	_ = sink.Report(ctx, sampleCycle("c1", t0, btcOpportunity()))
	if len(n.events) != 0 {
		t.Fatalf("unexpected alerts %v", n.events)
	}

	big := btcOpportunity()
	big.SpreadPct = d("0.8")
	_ = sink.Report(ctx, sampleCycle("c2", t0, big))
	if len(n.events) != 1 || n.events[0] != notify.EventOpportunity {
		t.Fatalf("events %v", n.events)
	}

	out := sampleCycle("c3", t0)
	out.Outages = []domain.Symbol{"ETHUSD"}
	_ = sink.Report(ctx, out)
	_ = sink.Report(ctx, out)
	if len(n.events) != 2 || n.events[1] != notify.EventOutage || !strings.Contains(n.messages[1], "ETHUSD") {
		t.Fatalf("outage should alert once, events %v", n.events)
	}

	_ = sink.Report(ctx, sampleCycle("c4", t0))
	_ = sink.Report(ctx, out)
	if len(n.events) != 3 {
		t.Fatalf("a recurring outage should alert again, events %v", n.events)
	}
}
