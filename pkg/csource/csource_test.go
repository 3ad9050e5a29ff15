// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ccharness/ccharness/pkg/depgraph"
	"github.com/ccharness/ccharness/pkg/osutil"
	"github.com/ccharness/ccharness/pkg/structinfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2025, 2, 20, 12, 34, 30, 0, time.UTC)

func testOptions(keyword, driver string) Options {
	opts := DefaultOptions(keyword)
	opts.Driver = driver
	opts.Input = "tcp_" + keyword + ".c"
	opts.Generated = stamp
	return opts
}

func TestCheck(t *testing.T) {
	tests := []struct {
		mod  func(*Options)
		fail bool
	}{
		{func(*Options) {}, false},
		{func(o *Options) { o.Keyword = "1bad" }, true},
		{func(o *Options) { o.Keyword = "" }, true},
		{func(o *Options) { o.Flavor = "windows" }, true},
		{func(o *Options) { o.Driver = "cubic" }, true},
		{func(o *Options) { o.Driver = DriverSearch }, false},
		{func(o *Options) { o.Flavor = FreeBSD; o.Driver = DriverBBR }, true},
		{func(o *Options) { o.Flavor = FreeBSD; o.Input = "" }, true},
		{func(o *Options) { o.CC = "" }, true},
	}
	for i, test := range tests {
		opts := testOptions("bbr", DriverBase)
		test.mod(&opts)
		err := opts.Check()
		if test.fail {
			assert.Error(t, err, "#%v: %+v", i, opts)
		} else {
			assert.NoError(t, err, "#%v: %+v", i, opts)
		}
	}
}

func TestSerialize(t *testing.T) {
	opts := testOptions("search", DriverSearch)
	got, err := DeserializeOptions(opts.Serialize())
	require.NoError(t, err)
	assert.Equal(t, opts, got)
}

func TestNames(t *testing.T) {
	opts := testOptions("SEARCH", DriverBase)
	assert.Equal(t, "search_module.c", opts.ModuleName())
	assert.Equal(t, "search_defs.h", opts.DefsName())
	assert.Equal(t, "search_test.c", opts.TestName())
	assert.Equal(t, "search_test.c", opts.DriverName())
	assert.Equal(t, "test_search", opts.ExecName())
	assert.Equal(t, "tcp.h", opts.HeaderName())
	assert.Equal(t, "cc_helper_function.h", opts.HelperName())

	opts.Driver = DriverNone
	assert.Equal(t, "test_search.c", opts.DriverName())
	opts.Driver = DriverBase

	opts.Flavor = FreeBSD
	opts.Input = "src/cc_newreno_search.c"
	assert.Equal(t, "cc_newreno_search.h", opts.DefsName())
	assert.Equal(t, "test_search.c", opts.TestName())
	assert.Equal(t, "test_search.c", opts.DriverName())
	assert.Equal(t, "cc.h", opts.HeaderName())
	assert.Equal(t, "cc_helper_function.h", opts.HelperName())
}

func inferLinux(t *testing.T, module string, known structinfer.Known, opts Options) (*structinfer.Result, []string) {
	eng, err := structinfer.Get("linux")
	require.NoError(t, err)
	res, err := eng.Infer(module, known)
	require.NoError(t, err)
	for strct, fields := range DriverFields(opts) {
		for _, f := range fields {
			res.AddField(strct, f)
		}
	}
	order, err := depgraph.Build(res).Order(depgraph.Detect)
	require.NoError(t, err)
	return res, order
}

const searchModule = `void search_update(struct sock *sk, u32 rtt_us)
{
	struct tcp_sock *tp = tcp_sk(sk);
	struct bictcp *ca = inet_csk_ca(sk);

	ca->search.bin_end_us = sim_clock_jiffies(sk) + rtt_us;
	tp->snd_ssthresh = tp->snd_cwnd;
}`

func TestHeader(t *testing.T) {
	opts := testOptions("search", DriverSearch)
	res, order := inferLinux(t, searchModule, structinfer.Known{"bictcp": true}, opts)
	data, err := Header(res, order, opts)
	require.NoError(t, err)
	src := string(data)
	for _, want := range []string{
		"Automatically generated tcp.h\n * by cc-extract on 2025-02-20 12:34:30.",
		"#ifndef TCP_H\n#define TCP_H\n",
		"#include \"cc_helper_function.h\"",
		"#define TCP_INIT_CWND 10\n",
		"#define TCP_INFINITE_SSTHRESH   0x7fffffff\n",
		"struct tcp_sock {\n    u64 bytes_acked;\n    u64 mss_cache;\n    u64 snd_cwnd;\n" +
			"    u64 snd_ssthresh;\n    u64 tcp_mstamp;\n};\n",
		"struct sock {\n    struct bictcp *bictcp;\n    struct sim_clock clock;\n" +
			"    struct tcp_sock tcp_sock;\n};\n",
		"#define tcp_sk(sk) (&(sk->tcp_sock))\n",
		"#define inet_csk_ca(sk) ((sk->bictcp))\n",
		"struct sim_clock {",
		"#define sim_clock_jiffies(sk) ((sk)->clock.jiffies)",
		"__attribute__((weak)) struct sim_clock *sim_clock_current;",
		"    sim_clock_current = c;\n",
		"#endif /* TCP_H */\n",
	} {
		assert.Contains(t, src, want)
	}
	assert.NotContains(t, src, "sim_clock_microuptime")
	assert.Less(t, strings.Index(src, "struct sim_clock {"), strings.Index(src, "struct sock {"))
	assert.Less(t, strings.Index(src, "struct tcp_sock {"), strings.Index(src, "struct sock {"))

	_, err = Header(res, append(order, "missing"), opts)
	assert.Error(t, err)
}

func TestHeaderFreeBSD(t *testing.T) {
	opts := testOptions("search", DriverBase)
	opts.Flavor = FreeBSD
	opts.Input = "cc_newreno_search.c"
	eng, err := structinfer.Get("freebsd")
	require.NoError(t, err)
	res, err := eng.Infer(`void f(struct cc_var *ccv) {
	CCV(ccv, snd_cwnd) = 4;
	sim_clock_microuptime(&ccv->clock, &tv);
}`, structinfer.Known{"search": true})
	require.NoError(t, err)
	order, err := depgraph.Build(res).Order(depgraph.Tolerate)
	require.NoError(t, err)
	data, err := Header(res, order, opts)
	require.NoError(t, err)
	src := string(data)
	assert.Contains(t, src, "#ifndef CC_H\n#define CC_H\n")
	assert.Contains(t, src, "#include <sys/time.h>")
	assert.Contains(t, src, "struct tcpcb {\n    uint64_t snd_cwnd;\n};\n")
	assert.Contains(t, src, "struct cc_var {\n    struct sim_clock clock;\n"+
		"    struct { struct tcpcb *tcp; } ccvc;\n    void *cc_data;\n};\n")
	assert.Contains(t, src, "#define CCV(ccv, field) ((ccv)->ccvc.tcp->field)\n")
	assert.Contains(t, src, "static inline void sim_clock_microuptime(")
	assert.NotContains(t, src, "sim_clock_jiffies")
}

func TestModule(t *testing.T) {
	opts := testOptions("search", DriverBase)
	body := "void f(struct sock *sk)\n{\n}"
	data, err := Module("\n"+body+"\n\n", opts)
	require.NoError(t, err)
	src := string(data)
	assert.Contains(t, src, "It holds the SEARCH_begin to SEARCH_end sections\n * of the source file tcp_search.c.")
	assert.True(t, strings.HasSuffix(src, "#include \"search_defs.h\"\n#include \"cc_helper_function.h\"\n\n"+body+"\n"), src)
	assert.Contains(t, src, "#include <string.h>\n#include \"tcp.h\"\n")
}

func TestDefs(t *testing.T) {
	opts := testOptions("bbr", DriverBase)
	data, err := Defs([]string{"extern void bbr_init(struct sock *sk);"}, "struct bbr {\n\tu32 mode;\n};", opts)
	require.NoError(t, err)
	src := string(data)
	assert.Contains(t, src, "#ifndef BBR_DEFS_H\n#define BBR_DEFS_H\n")
	assert.Contains(t, src, "struct bbr {\n\tu32 mode;\n};\n\nextern void bbr_init(struct sock *sk);\n")
	assert.True(t, strings.HasSuffix(src, "#endif // BBR_DEFS_H\n"))

	data, err = Defs(nil, "", opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#include \"cc_helper_function.h\"\n\n#endif // BBR_DEFS_H\n")

	opts.Flavor = FreeBSD
	_, err = Defs(nil, "", opts)
	assert.Error(t, err)
}

func TestHelper(t *testing.T) {
	data, err := Helper(&structinfer.Result{}, testOptions("bbr", DriverBase))
	require.NoError(t, err)
	src := string(data)
	for _, want := range []string{
		"Automatically generated cc_helper_function.h",
		"#ifndef CC_HELPER_FUNCTION_H\n",
		"typedef unsigned int         u32;",
		"#define before(seq1, seq2)",
		"static inline u64 div_u64(",
		"#define do_div(n, base)",
		"#define USEC_PER_SEC    1000000L",
		"static inline u32 minmax_running_max(",
		"static inline u32 tcp_min_rtt(",
	} {
		assert.Contains(t, src, want)
	}
	assert.NotContains(t, src, "tcp_jiffies32")
	assert.NotContains(t, src, "clock()")

	data, err = Helper(&structinfer.Result{Clock: true}, testOptions("bbr", DriverBase))
	require.NoError(t, err)
	assert.Contains(t, string(data),
		"#define tcp_jiffies32 (sim_clock_current ? sim_clock_current->jiffies : 0)\n\n#endif")

	opts := testOptions("search", DriverBase)
	opts.Flavor = FreeBSD
	data, err = Helper(&structinfer.Result{}, opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#define V_tcp_initcwnd_segments 10")
	assert.NotContains(t, string(data), "mock_now_us")
	assert.NotContains(t, string(data), "getmicrouptime")

	data, err = Helper(&structinfer.Result{Clock: true}, opts)
	require.NoError(t, err)
	assert.Contains(t, string(data), "static inline void getmicrouptime(struct timeval *tv)\n{\n"+
		"    if (sim_clock_current == NULL) {")
	assert.Contains(t, string(data), "    sim_clock_microuptime(sim_clock_current, tv);\n}\n")
}

func TestTestDrivers(t *testing.T) {
	opts := testOptions("search", DriverSearch)
	res, _ := inferLinux(t, searchModule, structinfer.Known{"bictcp": true}, opts)
	data, err := Test(res, opts)
	require.NoError(t, err)
	src := string(data)
	for _, want := range []string{
		"#include \"search_defs.h\"",
		"sk->bictcp = calloc(1, sizeof(struct bictcp));",
		"bictcp_search_reset(ca);",
		"u32 now_us, mss, rtt_us, tp_delivered_rate, tp_rate_interval_us, tp_delivered, lost, retrans, app_limited;\n" +
			"        u64 bytes_acked;\n",
		`if (sscanf(line, "%u,%llu,%u,%u,%u,%u,%u,%u,%u,%u", &now_us, &bytes_acked, &mss, &rtt_us, ` +
			`&tp_delivered_rate, &tp_rate_interval_us, &tp_delivered, &lost, &retrans, &app_limited) != 10) {`,
		"sim_clock_advance(&sk->clock, now_us);",
		"search_update(sk, rtt_us);",
		`printf("Exit Slow Start at %u\n", now_us);`,
		`printf("  loss happen: %u\n", LOSS_FLAG);`,
		"free(sk->bictcp);",
		`printf("Finished processing.\n");`,
	} {
		assert.Contains(t, src, want)
	}

	opts = testOptions("bbr", DriverBBR)
	res, _ = inferLinux(t, "void bbr_init(struct sock *sk) {\n\tstruct bbr *bbr = inet_csk_ca(sk);\n}",
		structinfer.Known{"bbr": true}, opts)
	data, err = Test(res, opts)
	require.NoError(t, err)
	src = string(data)
	assert.Contains(t, src, `"%u,%u,%u,%u,%u,%u,%u,%u"`)
	assert.Contains(t, src, "!= 8) {")
	assert.Contains(t, src, "bbr_check_full_bw_reached(sk, &rs);")
	assert.Contains(t, src, "bbr_init(sk);")
	assert.NotContains(t, src, "sim_clock_advance")

	opts = testOptions("cubic", DriverBase)
	res, _ = inferLinux(t, "void f(struct sock *sk) {}", structinfer.Known{}, opts)
	data, err = Test(res, opts)
	require.NoError(t, err)
	src = string(data)
	assert.Contains(t, src, "USER NOTE: parse the row")
	assert.NotContains(t, src, "Invalid line format")
	assert.NotContains(t, src, "calloc(1, sizeof(struct cubic))")

	opts.Driver = DriverNone
	_, err = Test(res, opts)
	assert.Error(t, err)
}

func TestMakefile(t *testing.T) {
	data, err := Makefile(testOptions("bbr", DriverBase))
	require.NoError(t, err)
	want := `# *****************************************************************************
# * Automatically generated Makefile
# * by cc-extract on 2025-02-20 12:34:30.
# *
# * WARNING: rerunning cc-extract overwrites manual changes of this file.
# *****************************************************************************

# Variables
CC = gcc
CFLAGS = -Wall -Wextra
EXEC = test_bbr
SRC = bbr_module.c bbr_test.c

# The default rule
all: $(EXEC)

$(EXEC): $(SRC)
	$(CC) -o $(EXEC) $(SRC) $(CFLAGS)

clean:
	rm -f $(EXEC)

run: $(EXEC)
	./$(EXEC)

.PHONY: all clean run
`
	assert.Equal(t, want, string(data))

	data, err = Makefile(testOptions("bbr", DriverNone))
	require.NoError(t, err)
	assert.Contains(t, string(data), "SRC = bbr_module.c test_bbr.c\n")
}

func TestDriverFields(t *testing.T) {
	assert.Nil(t, DriverFields(testOptions("x", DriverNone)))
	assert.Equal(t, []string{"snd_ssthresh", "snd_cwnd"}, DriverFields(testOptions("x", DriverBase))["tcp_sock"])
	assert.Contains(t, DriverFields(testOptions("x", DriverBBR)), "rate_sample")
	opts := testOptions("x", DriverBase)
	opts.Flavor = FreeBSD
	assert.Contains(t, DriverFields(opts)["cc_var"], "void *cc_data")
}

func TestBuild(t *testing.T) {
	for _, bin := range []string{"gcc", "make"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("no %v", bin)
		}
	}
	dir := t.TempDir()
	opts := testOptions("demo", DriverBase)
	module := `void demo_update(struct sock *sk)
{
	struct tcp_sock *tp = tcp_sk(sk);
	tp->snd_cwnd = tp->snd_cwnd + 1;
}`
	res, order := inferLinux(t, module, structinfer.Known{}, opts)
	files := map[string]func() ([]byte, error){
		opts.HeaderName(): func() ([]byte, error) { return Header(res, order, opts) },
		opts.ModuleName(): func() ([]byte, error) { return Module(module, opts) },
		opts.DefsName(): func() ([]byte, error) {
			return Defs(structinfer.FuncDecls(module), "", opts)
		},
		opts.HelperName(): func() ([]byte, error) { return Helper(res, opts) },
		opts.TestName():   func() ([]byte, error) { return Test(res, opts) },
		"Makefile":        func() ([]byte, error) { return Makefile(opts) },
	}
	for name, fn := range files {
		data, err := fn()
		require.NoError(t, err, name)
		require.NoError(t, osutil.WriteFile(filepath.Join(dir, name), data))
	}
	bin, err := Build(dir, opts)
	require.NoError(t, err)

	csv := filepath.Join(dir, "trace.csv")
	require.NoError(t, os.WriteFile(csv, []byte("now_us\n# comment\n100\n"), 0644))
	out, err := osutil.RunCmd(time.Minute, dir, bin, csv)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Line 3: 100\n")
	assert.Contains(t, string(out), "Finished processing.\n")

	require.NoError(t, Clean(dir))
	assert.False(t, osutil.IsExist(bin))
}

func TestBuildNoCompiler(t *testing.T) {
	opts := testOptions("demo", DriverBase)
	opts.CC = "no-such-compiler-ccharness"
	_, err := Build(t.TempDir(), opts)
	assert.True(t, errors.Is(err, ErrNoCompiler), "err: %v", err)
}

func TestFormat(t *testing.T) {
	if _, err := exec.LookPath("clang-format"); err != nil {
		t.Skip("no clang-format")
	}
	out, err := Format([]byte("int   main( ) {return 0;}\n"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "int main()\n{\n    return 0;\n}")
}
