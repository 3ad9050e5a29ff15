// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package structinfer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bbrModule = `void bbr_init(struct sock *sk)
{
	struct tcp_sock *tp = tcp_sk(sk);
	struct bbr *bbr = inet_csk_ca(sk);

	bbr->prior_cwnd = 0;
	tp->snd_ssthresh = TCP_INFINITE_SSTHRESH;
	bbr->min_rtt_us = tcp_min_rtt(tp);
	bbr->min_rtt_stamp = sim_clock_jiffies(sk);
	sk->sk_pacing_rate = 0;
}

u32 bbr_max_bw(const struct sock *sk)
{
	return tcp_sk(sk)->snd_cwnd;
}
`

func bbrResult() *Result {
	return &Result{
		Fields: map[string]FieldSet{
			"tcp_sock": {"snd_ssthresh": true, "snd_cwnd": true},
			"sock": {
				"sk_pacing_rate":           true,
				"struct tcp_sock tcp_sock": true,
				"struct bbr *bbr":          true,
				"struct sim_clock clock":   true,
			},
		},
		Order:  []string{"tcp_sock", "sock"},
		Macros: []Macro{{"tcp_sk", "tcp_sock"}, {"inet_csk_ca", "bbr"}},
		CC:     map[string]bool{"bbr": true},
		Clock:  true,
	}
}

func TestLinuxEngines(t *testing.T) {
	tests := []struct {
		name   string
		module string
		known  Known
		want   *Result
	}{
		{
			name: "tcp_sk",
			module: `void f(struct sock *sk) {
	struct tcp_sock *tp = tcp_sk(sk);
	tp->snd_cwnd;
}`,
			want: &Result{
				Fields: map[string]FieldSet{
					"tcp_sock": {"snd_cwnd": true},
					"sock":     {"struct tcp_sock tcp_sock": true},
				},
				Order:  []string{"tcp_sock", "sock"},
				Macros: []Macro{{"tcp_sk", "tcp_sock"}},
			},
		},
		{
			name: "access-order-irrelevant",
			module: `void f(struct Foo *x) {
	x->baz = 1;
	x->bar = x->baz;
}`,
			want: &Result{
				Fields: map[string]FieldSet{
					"Foo":  {"bar": true, "baz": true},
					"sock": {"struct tcp_sock tcp_sock": true},
				},
				Order: []string{"Foo", "sock"},
			},
		},
		{
			name:   "bbr",
			module: bbrModule,
			known:  Known{"bbr": true},
			want:   bbrResult(),
		},
		{
			name: "cc-needs-known-struct",
			module: `void f(struct sock *sk) {
	struct bictcp *ca = inet_csk_ca(sk);
	ca->cnt = 1;
}`,
			want: &Result{
				Fields: map[string]FieldSet{
					"bictcp": {"cnt": true},
					"sock":   {"struct tcp_sock tcp_sock": true},
				},
				Order:  []string{"bictcp", "sock"},
				Macros: []Macro{{"inet_csk_ca", "bictcp"}},
			},
		},
		{
			name: "first-macro-wins",
			module: `void f(struct sock *sk) {
	struct tcp_sock *tp = tcp_sk(sk);
}
void g(struct sock *sk) {
	struct other *o = tcp_sk(sk);
}`,
			want: &Result{
				Fields: map[string]FieldSet{
					"sock": {"struct tcp_sock tcp_sock": true},
				},
				Order:  []string{"sock"},
				Macros: []Macro{{"tcp_sk", "tcp_sock"}},
			},
		},
	}
	for _, engine := range []string{"linux", "treesitter"} {
		eng, err := Get(engine)
		require.NoError(t, err)
		for _, test := range tests {
			t.Run(engine+"/"+test.name, func(t *testing.T) {
				known := test.known
				if known == nil {
					known = Known{}
				}
				got, err := eng.Infer(test.module, known)
				require.NoError(t, err)
				if diff := cmp.Diff(test.want, got, cmpopts.EquateEmpty()); diff != "" {
					t.Fatal(diff)
				}
			})
		}
	}
}

func TestTreeSitterIgnoresComments(t *testing.T) {
	module := `void f(struct foo *p) {
	/* p->in_comment */
	p->real = 1;
}`
	lin, err := engines["linux"].Infer(module, Known{})
	require.NoError(t, err)
	assert.Equal(t, FieldSet{"in_comment": true, "real": true}, lin.Fields["foo"])

	ts, err := engines["treesitter"].Infer(module, Known{})
	require.NoError(t, err)
	assert.Equal(t, FieldSet{"real": true}, ts.Fields["foo"])
}

func TestTreeSitterSyntaxError(t *testing.T) {
	module := "void f(struct foo *p) {\n\tp->a = ;\n"
	res, err := engines["treesitter"].Infer(module, Known{})
	assert.True(t, errors.Is(err, ErrMalformed), "err: %v", err)
	require.NotNil(t, res)
	assert.Contains(t, res.Fields, "sock")
}

func TestMacroAccessKnownStruct(t *testing.T) {
	module := `void f(struct sock *sk) {
	struct bictcp *ca = inet_csk_ca(sk);
	inet_csk_ca(sk)->cnt = 1;
}`
	for _, name := range []string{"linux", "treesitter"} {
		res, err := engines[name].Infer(module, Known{"bictcp": true})
		require.NoError(t, err, name)
		strct, ok := res.Macro("inet_csk_ca")
		assert.True(t, ok, name)
		assert.Equal(t, "bictcp", strct, name)
		// Known structs are defined by the module itself, accesses add nothing.
		assert.NotContains(t, res.Fields, "bictcp", name)
		assert.Equal(t, FieldSet{"struct bictcp *bictcp": true, "struct tcp_sock tcp_sock": true},
			res.Fields["sock"], name)

		res, err = engines[name].Infer(module, Known{})
		require.NoError(t, err, name)
		assert.Equal(t, []string{"cnt"}, res.Fields["bictcp"].Sorted(), name)
	}
}

func TestFreeBSD(t *testing.T) {
	module := `void
search_ack_received(struct cc_var *ccv, ccsignal_t type)
{
	struct search *sv;
	struct timeval tv;

	sv = ccv->cc_data;
	if (CCV(ccv, snd_cwnd) > 10)
		tv.tv_sec = ccv->bytes_this_ack;
	CCV(ccv,t_maxseg);
}`
	got, err := engines["freebsd"].Infer(module, Known{"search": true})
	require.NoError(t, err)
	want := &Result{
		Fields: map[string]FieldSet{
			"cc_var": {
				"bytes_this_ack":                     true,
				"void *cc_data":                      true,
				"struct { struct tcpcb *tcp; } ccvc": true,
			},
			"tcpcb": {"snd_cwnd": true, "t_maxseg": true},
		},
		Order:  []string{"cc_var", "tcpcb"},
		Macros: []Macro{{"CCV", "tcpcb"}},
		CC:     map[string]bool{"search": true},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatal(diff)
	}
}

func TestFreeBSDInjectsTCPCB(t *testing.T) {
	got, err := engines["freebsd"].Infer("void f(struct cc_var *ccv) { CCV( ccv , snd_ssthresh ); }", Known{})
	require.NoError(t, err)
	assert.Equal(t, FieldSet{"snd_ssthresh": true}, got.Fields["tcpcb"])
}

func TestFreeBSDClock(t *testing.T) {
	module := "void f(struct cc_var *ccv) {\n\tsim_clock_microuptime(&ccv->clock, &tv);\n}"
	got, err := engines["freebsd"].Infer(module, Known{})
	require.NoError(t, err)
	assert.True(t, got.Clock)
	assert.Equal(t, FieldSet{
		"struct sim_clock clock":             true,
		"void *cc_data":                      true,
		"struct { struct tcpcb *tcp; } ccvc": true,
	}, got.Fields[CCVarStruct])
}

func TestEmptyModule(t *testing.T) {
	for _, name := range Names() {
		res, err := engines[name].Infer("  \n", Known{})
		assert.True(t, errors.Is(err, ErrMalformed), "%v: %v", name, err)
		assert.NotNil(t, res, name)
	}
}

func TestGet(t *testing.T) {
	assert.Equal(t, []string{"freebsd", "linux", "treesitter"}, Names())
	_, err := Get("clang")
	assert.Error(t, err)
}

func TestKnownStructs(t *testing.T) {
	known := KnownStructs(`struct bbr {
	u32 min_rtt_us;
};
struct search
{
	u32 bin[10];
};
struct sock *sk;
`)
	assert.Equal(t, Known{"bbr": true, "search": true}, known)
}

func TestFuncDecls(t *testing.T) {
	got := FuncDecls(bbrModule + "static void\nnot_a_def(void);\n")
	assert.Equal(t, []string{
		"extern void bbr_init(struct sock *sk);",
		"extern u32 bbr_max_bw(const struct sock *sk);",
	}, got)
}

func TestResultHelpers(t *testing.T) {
	res := bbrResult()
	assert.Equal(t, "bbr", res.Primary())
	assert.Equal(t, []string{"bbr"}, res.CCStructs())
	assert.False(t, res.AddMacro("tcp_sk", "x"))
	res.Drop("tcp_sock")
	res.Drop("missing")
	assert.Equal(t, []string{"sock"}, res.Order)
	assert.Equal(t, []string{
		"sk_pacing_rate", "struct bbr *bbr", "struct sim_clock clock", "struct tcp_sock tcp_sock",
	}, res.Fields["sock"].Sorted())
	assert.True(t, Typed("struct bbr *bbr"))
	assert.False(t, Typed("snd_cwnd"))
	assert.Equal(t, "", NewResult().Primary())
}
