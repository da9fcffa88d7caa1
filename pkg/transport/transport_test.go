package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TeoSlayer/sackudp/internal/lossy"
	"github.com/TeoSlayer/sackudp/pkg/congestion"
	"github.com/TeoSlayer/sackudp/pkg/observe"
	"github.com/TeoSlayer/sackudp/pkg/protocol"
)

func randomData(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return conn
}

// fastConfig shortens timers so loss recovery finishes quickly on loopback.
func fastConfig() Config {
	return Config{
		InitialRTO:        50 * time.Millisecond,
		MinRTO:            10 * time.Millisecond,
		MaxRTO:            500 * time.Millisecond,
		MaxRetransmits:    20,
		HandshakeInterval: 200 * time.Millisecond,
		IdleTimeout:       200 * time.Millisecond,
		MaxStalls:         15,
		Linger:            300 * time.Millisecond,
	}
}

type transfer struct {
	send  SendResult
	fetch FetchResult
}

func runTransfer(t *testing.T, data []byte, serverCfg, clientCfg Config, serverLoss, clientLoss lossy.Profile) (transfer, error) {
	t.Helper()
	var serverConn net.PacketConn = listenUDP(t)
	if serverLoss.Active() {
		serverConn = lossy.Wrap(serverConn, serverLoss)
	}
	var clientConn net.PacketConn = listenUDP(t)
	if clientLoss.Active() {
		clientConn = lossy.Wrap(clientConn, clientLoss)
	}
	server := NewSession(serverConn, serverCfg)
	client := NewSession(clientConn, clientCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var tr transfer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tr.send, err = server.Serve(gctx, data)
		return err
	})
	g.Go(func() error {
		var err error
		tr.fetch, err = client.Fetch(gctx, server.Addr())
		return err
	})
	return tr, g.Wait()
}

func TestTransferClean(t *testing.T) {
	t.Parallel()
	data := randomData(200*1024, 1)
	tr, err := runTransfer(t, data, fastConfig(), fastConfig(), lossy.Profile{}, lossy.Profile{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if sha256.Sum256(tr.fetch.Data) != sha256.Sum256(data) {
		t.Fatalf("hash mismatch: got %d bytes, want %d", len(tr.fetch.Data), len(data))
	}
	if tr.send.Window.SegmentsSent != uint64((len(data)+protocol.MSS-1)/protocol.MSS) {
		t.Errorf("segments sent = %d", tr.send.Window.SegmentsSent)
	}
	if tr.send.Socket.EOFSent != DefaultEOFRepeats {
		t.Errorf("EOF sent %d times, want %d", tr.send.Socket.EOFSent, DefaultEOFRepeats)
	}
	t.Logf("sent %d bytes in %v (%d retransmits)", len(data), tr.send.Elapsed, tr.send.Window.Retransmits)
}

func TestTransferUnderLoss(t *testing.T) {
	t.Parallel()
	for _, algo := range []congestion.Algorithm{congestion.AlgorithmFixed, congestion.AlgorithmAIMD, congestion.AlgorithmCubic} {
		algo := algo
		t.Run(string(algo), func(t *testing.T) {
			t.Parallel()
			data := randomData(150*1024, 2)
			rec := &observe.Recorder{}
			scfg := fastConfig()
			scfg.Algorithm = algo
			scfg.Window = 32 * protocol.MSS
			scfg.Observer = rec

			impair := lossy.Profile{Drop: 0.05, Duplicate: 0.02, Reorder: 0.05, Seed: 3}
			tr, err := runTransfer(t, data, scfg, fastConfig(), impair, lossy.Profile{Drop: 0.05, Seed: 4})
			if err != nil {
				t.Fatalf("transfer: %v", err)
			}
			if !bytes.Equal(tr.fetch.Data, data) {
				t.Fatalf("data mismatch: got %d bytes, want %d", len(tr.fetch.Data), len(data))
			}
			retx := tr.send.Window.Retransmits + tr.send.Window.FastRetransmits
			if retx == 0 {
				t.Error("no retransmissions despite loss")
			}
			if rec.Count(observe.Completed) != 1 {
				t.Errorf("completed events = %d, want 1", rec.Count(observe.Completed))
			}
			t.Logf("%s: %d retransmits, %d fast, %d timeouts, %d dup segments at receiver",
				algo, tr.send.Window.Retransmits, tr.send.Window.FastRetransmits,
				tr.send.Window.Timeouts, tr.fetch.Assembler.Duplicates)
		})
	}
}

func TestTransferAwaitAck(t *testing.T) {
	t.Parallel()
	data := randomData(64*1024, 5)
	scfg := fastConfig()
	scfg.EOFPolicy = AwaitAck
	ccfg := fastConfig()
	ccfg.EOFPolicy = AwaitAck
	ccfg.Linger = 2 * time.Second

	tr, err := runTransfer(t, data, scfg, ccfg,
		lossy.Profile{Drop: 0.2, Seed: 6},
		lossy.Profile{Drop: 0.2, Seed: 7})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !bytes.Equal(tr.fetch.Data, data) {
		t.Fatal("data mismatch")
	}
	if tr.send.Socket.EOFSent == 0 {
		t.Error("EOF never sent")
	}
}

func TestTransferEmpty(t *testing.T) {
	t.Parallel()
	tr, err := runTransfer(t, nil, fastConfig(), fastConfig(), lossy.Profile{}, lossy.Profile{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(tr.fetch.Data) != 0 {
		t.Errorf("got %d bytes, want 0", len(tr.fetch.Data))
	}
}

func TestHandshakeFailure(t *testing.T) {
	t.Parallel()
	silent := listenUDP(t)
	defer silent.Close()

	cfg := fastConfig()
	cfg.HandshakeAttempts = 3
	cfg.HandshakeInterval = 50 * time.Millisecond
	client := NewSession(listenUDP(t), cfg)

	start := time.Now()
	_, err := client.Fetch(context.Background(), silent.LocalAddr())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("gave up after %v, expected three 50ms attempts", elapsed)
	}

	requests := 0
	buf := make([]byte, 64)
	for {
		silent.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, _, err := silent.ReadFrom(buf)
		if err != nil {
			break
		}
		if n == 1 && buf[0] == protocol.RequestByte {
			requests++
		}
	}
	if requests != 3 {
		t.Errorf("server saw %d requests, want 3", requests)
	}
}

func TestStallReturnsPartial(t *testing.T) {
	t.Parallel()
	fake := listenUDP(t)
	defer fake.Close()

	go func() {
		buf := make([]byte, 64)
		_, from, err := fake.ReadFrom(buf)
		if err != nil {
			return
		}
		seg, _ := protocol.EncodeData(0, []byte("hello"))
		fake.WriteTo(seg, from)
		// Jump ahead so the receiver has something to SACK, then go silent.
		seg, _ = protocol.EncodeData(10, []byte("world"))
		fake.WriteTo(seg, from)
	}()

	cfg := fastConfig()
	cfg.IdleTimeout = 30 * time.Millisecond
	cfg.MaxStalls = 3
	client := NewSession(listenUDP(t), cfg)
	res, err := client.Fetch(context.Background(), fake.LocalAddr())

	var stalled *StalledError
	if !errors.As(err, &stalled) {
		t.Fatalf("expected *StalledError, got %v", err)
	}
	if string(stalled.Partial) != "hello" || stalled.Timeouts != 3 {
		t.Errorf("partial=%q timeouts=%d", stalled.Partial, stalled.Timeouts)
	}
	// one ack per segment plus a re-ack on each of the first two timeouts
	if res.Socket.AcksSent != 4 {
		t.Errorf("acks sent = %d, want 4", res.Socket.AcksSent)
	}
}

func TestStallDespiteJunkTraffic(t *testing.T) {
	t.Parallel()
	fake := listenUDP(t)
	defer fake.Close()
	stranger := listenUDP(t)
	defer stranger.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		buf := make([]byte, 64)
		_, client, err := fake.ReadFrom(buf)
		if err != nil {
			return
		}
		seg, _ := protocol.EncodeData(0, []byte("hello"))
		fake.WriteTo(seg, client)

		oversize := bytes.Repeat([]byte{0xAB}, 1500)
		short := []byte{1, 2, 3, 4, 5}
		foreign, _ := protocol.EncodeData(5, []byte("not from the server"))
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				fake.WriteTo(oversize, client)
				fake.WriteTo(short, client)
				stranger.WriteTo(foreign, client)
			}
		}
	}()

	cfg := fastConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	cfg.MaxStalls = 3
	client := NewSession(listenUDP(t), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	res, err := client.Fetch(ctx, fake.LocalAddr())

	var stalled *StalledError
	if !errors.As(err, &stalled) {
		t.Fatalf("expected *StalledError after %v, got %v", time.Since(start), err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stall reported after %v, junk kept the receiver alive", elapsed)
	}
	if string(stalled.Partial) != "hello" {
		t.Errorf("partial = %q, want hello", stalled.Partial)
	}
	if res.Socket.Malformed == 0 || res.Socket.Foreign == 0 {
		t.Errorf("junk not counted: malformed=%d foreign=%d", res.Socket.Malformed, res.Socket.Foreign)
	}
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.InitialRTO = 20 * time.Millisecond
	cfg.MaxRTO = 50 * time.Millisecond
	cfg.MaxRetransmits = 2
	server := NewSession(listenUDP(t), cfg)

	mute := listenUDP(t)
	defer mute.Close()
	mute.WriteTo([]byte{protocol.RequestByte}, server.Addr())

	_, err := server.Serve(context.Background(), randomData(10*protocol.MSS, 8))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestServeCancellation(t *testing.T) {
	t.Parallel()
	server := NewSession(listenUDP(t), Config{})
	addr := server.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := server.Serve(ctx, []byte("never sent"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The socket is released.
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		t.Fatalf("re-listen on %s: %v", addr, err)
	}
	conn.Close()
}

func TestAcceptTimeout(t *testing.T) {
	t.Parallel()
	server := NewSession(listenUDP(t), Config{AcceptTimeout: 30 * time.Millisecond})
	_, err := server.Serve(context.Background(), []byte("x"))
	if !errors.Is(err, ErrAcceptTimeout) {
		t.Fatalf("expected ErrAcceptTimeout, got %v", err)
	}
}

func TestMalformedDatagramsIgnored(t *testing.T) {
	t.Parallel()
	data := randomData(20*1024, 9)
	serverConn := listenUDP(t)
	server := NewSession(serverConn, fastConfig())

	junk := listenUDP(t)
	defer junk.Close()
	junk.WriteTo(bytes.Repeat([]byte{0xFF}, 40), server.Addr())

	client := NewSession(listenUDP(t), fastConfig())
	g, ctx := errgroup.WithContext(context.Background())
	var got FetchResult
	var sent SendResult
	g.Go(func() error {
		var err error
		sent, err = server.Serve(ctx, data)
		return err
	})
	g.Go(func() error {
		time.Sleep(20 * time.Millisecond)
		var err error
		got, err = client.Fetch(ctx, server.Addr())
		return err
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !bytes.Equal(got.Data, data) {
		t.Fatal("data mismatch")
	}
	if sent.Socket.Malformed == 0 {
		t.Error("junk datagram not counted as malformed")
	}
}

func TestSessionSingleUse(t *testing.T) {
	t.Parallel()
	s := NewSession(listenUDP(t), Config{AcceptTimeout: time.Millisecond})
	s.Serve(context.Background(), nil)
	if _, err := s.Serve(context.Background(), nil); !errors.Is(err, ErrSessionUsed) {
		t.Fatalf("expected ErrSessionUsed, got %v", err)
	}
}

func TestParseEOFPolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]EOFPolicy{"": BestEffort, "best-effort": BestEffort, "await-ack": AwaitAck} {
		got, err := ParseEOFPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseEOFPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseEOFPolicy("maybe"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	var c Config
	if c.window() != DefaultWindow || c.eofRepeats() != DefaultEOFRepeats || c.handshakeAttempts() != DefaultHandshakeAttempts {
		t.Error("zero config did not take defaults")
	}
	if c.algorithm() != congestion.AlgorithmCubic {
		t.Errorf("default algorithm = %s", c.algorithm())
	}
	c.Window = 100 // below one MSS
	if c.window() != DefaultWindow {
		t.Errorf("window below MSS not defaulted: %d", c.window())
	}
}
