package pscrypt

import (
	"context"
	"encoding/hex"
	"math/bits"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
	"github.com/TheusHen/pscrypt/pscrypt/remote"
	"github.com/TheusHen/pscrypt/pscrypt/schedule"
)

func identityForTest(t *testing.T) identity.KeyPair {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

var rfc7914Vectors = []struct {
	password, salt string
	N, r, p        int
	want           string
}{
	{"", "", 16, 1, 1,
		"77d6576238657b203b19ca42c18a0497f16b4844e3074ae8dfdffa3fede21442fcd0069ded0948f8326a753a0fc81f17e8d3e0fb2e0d3628cf35e20c38d18906"},
	{"password", "NaCl", 1024, 8, 16,
		"fdbabe1c9d3472007856e7190d01e9fe7c6ad7cbc8237830e77376634b3731622eaf30d92e22a3886ff109279d9830dac727afb94a83ee6d8360cbdfa2cc0640"},
	{"pleaseletmein", "SodiumChloride", 16384, 8, 1,
		"7023bdcb3afd7348461c06cd81fd38ebfda8fbba904f8e3ea9b543f6545da1f2d5432955613f0fcf62d49705242a9af9e61e85dc0d651e40dfcf017b45575887"},
}

func TestRFC7914Vectors(t *testing.T) {
	d := NewDeriver(Config{MaxThreads: 4})
	defer d.Close()

	for _, v := range rfc7914Vectors {
		want, err := hex.DecodeString(v.want)
		require.NoError(t, err)

		got, err := d.Derive(context.Background(), []byte(v.password), []byte(v.salt),
			Params{N: v.N, R: v.r, P: v.p, KeyLen: 64})
		require.NoError(t, err)
		require.Equal(t, want, got, "N=%d r=%d p=%d", v.N, v.r, v.p)

		got, err = Key([]byte(v.password), []byte(v.salt), v.N, v.r, v.p, 64)
		require.NoError(t, err)
		require.Equal(t, want, got, "sequential N=%d r=%d p=%d", v.N, v.r, v.p)
	}
}

func TestMatchesReference(t *testing.T) {
	d := NewDeriver(DefaultConfig())
	defer d.Close()

	cases := []Params{
		{N: 2, R: 1, P: 1, KeyLen: 32},
		{N: 16, R: 2, P: 3, KeyLen: 48},
		{N: 64, R: 3, P: 5, KeyLen: 17},
		{N: 256, R: 1, P: 8, KeyLen: 100, MaxThreads: 3},
	}
	for _, p := range cases {
		want, err := scrypt.Key([]byte("correct horse"), []byte("battery staple"), p.N, p.R, p.P, p.KeyLen)
		require.NoError(t, err)

		got, err := d.Derive(context.Background(), []byte("correct horse"), []byte("battery staple"), p)
		require.NoError(t, err)
		require.Equal(t, want, got, "%+v", p)
	}
}

func TestPathsAgree(t *testing.T) {
	par := NewDeriver(Config{MaxThreads: 8})
	defer par.Close()
	seq := NewDeriver(Config{DisableParallel: true})
	defer seq.Close()
	require.Equal(t, schedule.ProviderUnavailable, seq.Handle().State)

	params := Params{N: 128, R: 2, P: 6, KeyLen: 64}
	a, err := par.Derive(context.Background(), []byte("pw"), []byte("salt"), params)
	require.NoError(t, err)
	b, err := seq.Derive(context.Background(), []byte("pw"), []byte("salt"), params)
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.Equal(t, int64(6), par.Stats().Completed.Load())
	require.Equal(t, int64(1), seq.Stats().Fallbacks.Load())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		params Params
		param  string
	}{
		{Params{N: 0, R: 1, P: 1, KeyLen: 1}, "N"},
		{Params{N: 6, R: 1, P: 1, KeyLen: 1}, "N"},
		{Params{N: -16, R: 1, P: 1, KeyLen: 1}, "N"},
		{Params{N: 16, R: 0, P: 1, KeyLen: 1}, "r"},
		{Params{N: 16, R: 1, P: 0, KeyLen: 1}, "p"},
		{Params{N: 1024, R: 1 << 22, P: 1, KeyLen: 1}, "N"},
		{Params{N: 1 << 24, R: 1, P: 1, KeyLen: 1}, "N"},
		{Params{N: 2, R: 1 << 16, P: 1 << 8, KeyLen: 1}, "r"},
		{Params{N: 16, R: 1, P: 1, KeyLen: 0}, "keyLen"},
	}
	for _, tc := range cases {
		err := tc.params.Validate()
		require.ErrorIs(t, err, ErrInvalidParams, "%+v", tc.params)

		var pe *ParameterError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, tc.param, pe.Param, "%+v", tc.params)
	}

	require.NoError(t, Params{N: 1, R: 1, P: 1, KeyLen: 1}.Validate())
	require.NoError(t, DefaultParams.Validate())
	require.Equal(t, 1024, DefaultParams.BlockSize())
	require.Equal(t, 16384*1024+256*8, DefaultParams.ScratchSize())
}

func TestInvalidParamsReturnNoChannel(t *testing.T) {
	d := NewDeriver(DefaultConfig())
	defer d.Close()

	ch, err := d.DeriveKey(context.Background(), []byte("pw"), []byte("salt"), Params{N: 1000, R: 8, P: 1, KeyLen: 32})
	require.ErrorIs(t, err, ErrInvalidParams)
	require.Nil(t, ch)

	_, err = Key([]byte("pw"), []byte("salt"), 16, 0, 1, 32)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestNOne(t *testing.T) {
	dk, err := Key([]byte("pw"), []byte("salt"), 1, 1, 2, 32)
	require.NoError(t, err)
	require.Len(t, dk, 32)

	d := NewDeriver(DefaultConfig())
	defer d.Close()
	got, err := d.Derive(context.Background(), []byte("pw"), []byte("salt"), Params{N: 1, R: 1, P: 2, KeyLen: 32})
	require.NoError(t, err)
	require.Equal(t, dk, got)
}

func TestKeyLengths(t *testing.T) {
	d := NewDeriver(DefaultConfig())
	defer d.Close()

	long, err := d.Derive(context.Background(), []byte("pw"), []byte("salt"), Params{N: 16, R: 1, P: 2, KeyLen: 97})
	require.NoError(t, err)
	require.Len(t, long, 97)

	for _, n := range []int{1, 31, 32, 33, 64} {
		dk, err := d.Derive(context.Background(), []byte("pw"), []byte("salt"), Params{N: 16, R: 1, P: 2, KeyLen: n})
		require.NoError(t, err)
		require.Equal(t, long[:n], dk, "keyLen=%d", n)
	}
}

func differingBits(a, b []byte) int {
	n := 0
	for i := range a {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}

func TestAvalanche(t *testing.T) {
	params := Params{N: 32, R: 1, P: 1, KeyLen: 32}
	password, salt := []byte("password"), []byte("NaCl salt")
	derive := func(pw, s []byte) []byte {
		dk, err := Key(pw, s, params.N, params.R, params.P, params.KeyLen)
		require.NoError(t, err)
		return dk
	}
	flipBit := func(in []byte, bit int) []byte {
		out := append([]byte(nil), in...)
		out[bit/8] ^= 1 << (bit % 8)
		return out
	}

	base := derive(password, salt)
	outBits := 8 * params.KeyLen

	total, samples := 0, 0
	for bit := 0; bit < 8*len(password); bit += 7 {
		d := differingBits(base, derive(flipBit(password, bit), salt))
		require.Greater(t, d, outBits/4, "password bit %d", bit)
		total += d
		samples++
	}
	for bit := 0; bit < 8*len(salt); bit += 9 {
		d := differingBits(base, derive(password, flipBit(salt, bit)))
		require.Greater(t, d, outBits/4, "salt bit %d", bit)
		total += d
		samples++
	}

	avg := float64(total) / float64(samples)
	require.InDelta(t, float64(outBits)/2, avg, 0.1*float64(outBits),
		"average of %d flips changed %.1f of %d bits", samples, avg, outBits)
}

func TestInputsCopied(t *testing.T) {
	d := NewDeriver(DefaultConfig())
	defer d.Close()

	params := Params{N: 64, R: 1, P: 2, KeyLen: 32}
	want, err := Key([]byte("password"), []byte("salt"), params.N, params.R, params.P, params.KeyLen)
	require.NoError(t, err)

	pw := []byte("password")
	salt := []byte("salt")
	ch, err := d.DeriveKey(context.Background(), pw, salt, params)
	require.NoError(t, err)
	copy(pw, "xxxxxxxx")
	copy(salt, "yyyy")

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		require.Equal(t, want, res.Key)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	_, ok := <-ch
	require.False(t, ok, "channel must be closed after the result")
}

func TestCanceledDerivation(t *testing.T) {
	d := NewDeriver(DefaultConfig())
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Derive(ctx, []byte("pw"), []byte("salt"), Params{N: 16, R: 1, P: 4, KeyLen: 32})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, schedule.ErrProviderFailure)
}

func TestClosedDeriver(t *testing.T) {
	d := NewDeriver(DefaultConfig())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.DeriveKey(context.Background(), []byte("pw"), []byte("salt"), Params{N: 16, R: 1, P: 1, KeyLen: 32})
	require.ErrorIs(t, err, ErrDeriverClosed)
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(`
max_threads = 4
unit_timeout = "1.5s"

[remote]
addr = "10.0.0.2:7914"

[server]
listen = "0.0.0.0:7914"
allowed_peers = ["00ff"]
`)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MaxThreads)
	require.Equal(t, 1500*time.Millisecond, cfg.UnitTimeout.Duration)
	require.Equal(t, "10.0.0.2:7914", cfg.Remote.Addr)
	require.Equal(t, "0.0.0.0:7914", cfg.Server.Listen)
	require.Equal(t, []string{"00ff"}, cfg.Server.AllowedPeers)
	require.Equal(t, DefaultConfig().Server.MaxScratchBytes, cfg.Server.MaxScratchBytes)

	_, err = DecodeConfig(`unit_timeout = "soon"`)
	require.Error(t, err)

	_, err = LoadConfig("does-not-exist.toml")
	require.Error(t, err)
}

func TestNewRemoteDeriverNeedsAddress(t *testing.T) {
	_, err := NewRemoteDeriver(context.Background(), DefaultConfig(), identityForTest(t))
	require.ErrorIs(t, err, ErrNoRemote)
}

func TestRemoteDeriver(t *testing.T) {
	srv := remote.NewServer(identityForTest(t), remote.ServerOptions{MaxScratchBytes: 1 << 20})
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Serve(context.Background())
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxThreads = 3
	cfg.Remote.Addr = srv.ListenAddr()
	cfg.Remote.PeerID = srv.PeerID().String()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d, err := NewRemoteDeriver(ctx, cfg, identityForTest(t))
	require.NoError(t, err)
	require.Equal(t, schedule.ProviderAvailable, d.Handle().State, "reason: %v", d.Handle().Reason)

	params := Params{N: 256, R: 2, P: 4, KeyLen: 64}
	want, err := scrypt.Key([]byte("pw"), []byte("salt"), params.N, params.R, params.P, params.KeyLen)
	require.NoError(t, err)
	got, err := d.Derive(ctx, []byte("pw"), []byte("salt"), params)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, int64(params.P), srv.Served())
	require.NoError(t, d.Close())

	cfg.Remote.PeerID = "not hex"
	_, err = NewRemoteDeriver(ctx, cfg, identityForTest(t))
	require.Error(t, err)
}

func BenchmarkDerive(b *testing.B) {
	d := NewDeriver(Config{MaxThreads: 4})
	defer d.Close()
	params := Params{N: 1024, R: 8, P: 4, KeyLen: 32}
	for i := 0; i < b.N; i++ {
		if _, err := d.Derive(context.Background(), []byte("pw"), []byte("salt"), params); err != nil {
			b.Fatalf("Derive: %v", err)
		}
	}
}
