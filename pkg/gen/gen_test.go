// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package gen

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ccharness/ccharness/pkg/csource"
	"github.com/ccharness/ccharness/pkg/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchSource = `#include <linux/module.h>

// SEARCH_defs_begin
struct bictcp {
	u32 cnt;
};
static int search_window __read_mostly = 10;
// SEARCH_defs_end

// SEARCH_begin
static inline void search_update(struct sock *sk, u32 rtt_us)
{
	struct tcp_sock *tp = tcp_sk(sk);
	struct bictcp *ca = inet_csk_ca(sk);

	tp->snd_cwnd = tp->snd_cwnd + ca->cnt;
	ca->cnt = tcp_jiffies32 + rtt_us;
}
// SEARCH_end
`

func testConfig(t *testing.T, src string) *Config {
	dir := t.TempDir()
	input := filepath.Join(dir, "tcp_search.c")
	require.NoError(t, os.WriteFile(input, []byte(src), 0644))
	cfg := DefaultConfig()
	cfg.Input = input
	cfg.Keyword = "SEARCH"
	cfg.TestDir = filepath.Join(dir, "test")
	cfg.Driver = csource.DriverSearch
	cfg.Now = func() time.Time { return time.Date(2025, 2, 20, 12, 34, 30, 0, time.UTC) }
	return cfg
}

func readOut(t *testing.T, cfg *Config, name string) string {
	data, err := os.ReadFile(filepath.Join(cfg.TestDir, name))
	require.NoError(t, err)
	return string(data)
}

func TestGenerate(t *testing.T) {
	cfg := testConfig(t, searchSource)
	rep, err := Generate(cfg)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.False(t, rep.Fatal())

	header := readOut(t, cfg, "tcp.h")
	assert.Contains(t, header, "struct tcp_sock {\n")
	assert.Contains(t, header, "    u64 snd_cwnd;\n")
	assert.Contains(t, header, "#define tcp_sk(sk) (&(sk->tcp_sock))\n")
	assert.Contains(t, header, "#define inet_csk_ca(sk) ((sk->bictcp))\n")
	assert.NotContains(t, header, "struct bictcp {")

	module := readOut(t, cfg, "search_module.c")
	assert.Contains(t, module, "void search_update(struct sock *sk, u32 rtt_us)\n{")
	assert.NotContains(t, module, "static")
	assert.NotContains(t, module, "inline")
	assert.Contains(t, module, "ca->cnt = sim_clock_jiffies(sk) + rtt_us;")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(module), "ca->cnt = sim_clock_jiffies(sk) + rtt_us;\n}"))

	defs := readOut(t, cfg, "search_defs.h")
	assert.Contains(t, defs, "struct bictcp {")
	assert.Contains(t, defs, "int search_window  = 10;")
	assert.Contains(t, defs, "void search_update(struct sock *sk, u32 rtt_us);")

	assert.Contains(t, readOut(t, cfg, "cc_helper_function.h"), "minmax")
	assert.Contains(t, readOut(t, cfg, "search_test.c"), "search_update(sk, rtt_us);")
	assert.Contains(t, readOut(t, cfg, "Makefile"), "EXEC = test_search")

	opts, err := csource.LoadOptions(cfg.TestDir)
	require.NoError(t, err)
	assert.Equal(t, "SEARCH", opts.Keyword)
	assert.Equal(t, csource.DriverSearch, opts.Driver)
	assert.True(t, Exists(cfg.TestDir, opts))

	assert.NotContains(t, rep.Order, "bictcp")
	assert.Less(t, indexOf(rep.Order, "tcp_sock"), indexOf(rep.Order, "sock"))
}

func indexOf(order []string, name string) int {
	for i, s := range order {
		if s == name {
			return i
		}
	}
	return -1
}

func TestGenerateNoModule(t *testing.T) {
	cfg := testConfig(t, "int x;\n")
	cfg.Driver = csource.DriverBase
	rep, err := Generate(cfg)
	require.NoError(t, err)
	assert.False(t, rep.Fatal())
	a, ok := rep.Artifact("search_module.c")
	require.True(t, ok)
	assert.True(t, errors.Is(a.Err, section.ErrNoContent))
	assert.True(t, errors.Is(rep.Err(), section.ErrNoContent))

	// Everything that does not need the module is still generated.
	for _, name := range []string{"tcp.h", "cc_helper_function.h", "search_test.c", "Makefile"} {
		_, err := os.Stat(filepath.Join(cfg.TestDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(cfg.TestDir, "search_defs.h"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateBestEffort(t *testing.T) {
	cfg := testConfig(t, "int x;\n")
	cfg.BestEffort = false
	_, err := Generate(cfg)
	assert.Error(t, err)
}

func TestGenerateOptions(t *testing.T) {
	cfg := testConfig(t, searchSource)
	cfg.Driver = csource.DriverNone
	cfg.NoHelper = true
	cfg.Stdint = true
	rep, err := Generate(cfg)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	_, ok := rep.Artifact("search_test.c")
	assert.False(t, ok)
	_, ok = rep.Artifact("cc_helper_function.h")
	assert.False(t, ok)
	assert.Contains(t, readOut(t, cfg, "search_module.c"), "uint32_t rtt_us")
	assert.Contains(t, readOut(t, cfg, "Makefile"), "SRC = search_module.c test_search.c\n")

	cfg.Keyword = "bad keyword"
	_, err = Generate(cfg)
	assert.Error(t, err)

	cfg = testConfig(t, searchSource)
	cfg.Engine = "unknown"
	_, err = Generate(cfg)
	assert.Error(t, err)
}

func TestGenerateFreeBSD(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cc_search.c")
	require.NoError(t, os.WriteFile(input, []byte(`
// SEARCH_begin
static uint64_t get_now_us(void)
{
	struct timeval tv;

	getmicrouptime(&tv);
	return tv.tv_sec * 1000000 + tv.tv_usec;
}

static void search_ack(struct cc_var *ccv)
{
	struct search *s = ccv->cc_data;
	struct timeval now;

	getmicrouptime(&now);
	s->last = now.tv_sec;
	CCV(ccv, snd_cwnd) = 10;
}
// SEARCH_end
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cc_search.h"),
		[]byte("struct search {\n\tuint32_t last;\n};\n"), 0644))
	cfg := DefaultConfig()
	cfg.Input = input
	cfg.Keyword = "SEARCH"
	cfg.OS = csource.FreeBSD
	cfg.TestDir = filepath.Join(dir, "test")
	rep, err := Generate(cfg)
	require.NoError(t, err)
	require.NoError(t, rep.Err())

	header := readOut(t, cfg, "cc.h")
	assert.Contains(t, header, "struct cc_var {")
	assert.Contains(t, header, "struct sim_clock clock;")
	assert.Contains(t, header, "sim_clock_microuptime")
	assert.NotContains(t, header, "struct search {")
	assert.Contains(t, readOut(t, cfg, "cc_search.h"), "uint32_t last;")
	module := readOut(t, cfg, "search_module.c")
	assert.Contains(t, module, "sim_clock_microuptime(&ccv->clock, &now);")
	assert.Contains(t, module, "uint64_t get_now_us(void)\n{\n\tstruct timeval tv;\n\n\tgetmicrouptime(&tv);\n")
	assert.Contains(t, readOut(t, cfg, "cc_helper_function.h"), "static inline void getmicrouptime(struct timeval *tv)")
	assert.Contains(t, readOut(t, cfg, "test_search.c"), "struct cc_var")
	_, err = os.Stat(filepath.Join(cfg.TestDir, "search_defs.h"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateDryRun(t *testing.T) {
	cfg := testConfig(t, searchSource)
	cfg.DryRun = true
	diff := new(bytes.Buffer)
	cfg.Diff = diff
	rep, err := Generate(cfg)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	_, err = os.Stat(cfg.TestDir)
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, diff.String(), "+++ "+filepath.Join(cfg.TestDir, "tcp.h"))
	assert.Contains(t, diff.String(), "+struct tcp_sock {\n")
}

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gen.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"keyword": "BBR", "driver": "bbr"}`), 0644))
	t.Setenv("CCHARNESS_CC", "clang")
	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "BBR", cfg.Keyword)
	assert.Equal(t, "bbr", cfg.Driver)
	assert.Equal(t, "clang", cfg.CC)
	assert.Equal(t, csource.Linux, cfg.OS)
	assert.True(t, cfg.BestEffort)
}
