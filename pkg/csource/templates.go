// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

// Templates of the generated files, executed with sprig functions over a *data.

const bannerTemplate = `{{define "banner" -}}
/*
 *****************************************************************************
 * Automatically generated {{.File}}
 * by cc-extract on {{.Stamp}}.
{{- range .Lines}}
 *{{if .}} {{.}}{{end}}
{{- end}}
 *
 * WARNING: rerunning cc-extract overwrites manual changes of this file.
 *****************************************************************************
 */
{{end}}`

const clockTemplate = `{{define "clock"}}{{if .Clock}}
/* Simulation clock, advanced by the test driver from trace timestamps. */
#define SIM_CLOCK_HZ 1000

struct sim_clock {
    uint64_t now_us;
    uint32_t jiffies;
};

/* The clock advanced last, read by code that has no instance at hand. */
__attribute__((weak)) struct sim_clock *sim_clock_current;

static inline void sim_clock_advance(struct sim_clock *c, uint64_t now_us)
{
    c->now_us = now_us;
    c->jiffies = (uint32_t)(now_us / (1000000 / SIM_CLOCK_HZ));
    sim_clock_current = c;
}
{{if eq .Opts.Flavor "freebsd"}}
static inline void sim_clock_microuptime(const struct sim_clock *c, struct timeval *tv)
{
    tv->tv_sec = c->now_us / 1000000;
    tv->tv_usec = c->now_us % 1000000;
}
{{else}}
#define sim_clock_jiffies(sk) ((sk)->clock.jiffies)
{{end}}{{end}}{{end}}`

const structsTemplate = `{{define "structs"}}{{range .Structs}}
struct {{.Name}} {
{{- range .Fields}}
    {{.}};
{{- end}}
};
{{end}}{{end}}`

const linuxHeaderTemplate = `{{define "tcp.h"}}{{template "banner" (banner . .Opts.HeaderName
	"It defines the core TCP structures of the test harness."
	(printf "Congestion control structures are defined in %v." .Opts.DefsName))}}
#ifndef TCP_H
#define TCP_H

#include <stdint.h>
#include "{{.Opts.HelperName}}"

#define TCP_INIT_CWND 10
#define TCP_INFINITE_SSTHRESH   0x7fffffff
{{template "clock" .}}{{template "structs" .}}
{{range .Macros -}}
#define {{.Name}}(sk) {{if .CC}}((sk->{{.Struct}})){{else}}(&(sk->{{.Struct}})){{end}}
{{end}}
#endif /* TCP_H */
{{end}}`

const bsdHeaderTemplate = `{{define "cc.h"}}{{template "banner" (banner . .Opts.HeaderName
	"It defines the core CC structures of the test harness."
	(printf "Congestion control structures are defined in %v." .Opts.DefsName))}}
#ifndef CC_H
#define CC_H

#include <stdint.h>
#include <sys/time.h>
{{template "clock" .}}{{template "structs" .}}
{{range .Macros -}}
#define {{.Name}}(ccv, field) ((ccv)->ccvc.{{if eq .Struct "tcpcb"}}tcp{{else}}{{.Struct}}{{end}}->field)
{{end}}
#endif /* CC_H */
{{end}}`

const moduleTemplate = `{{define "module"}}{{template "banner" (banner . .Opts.ModuleName
	(printf "It holds the %v_begin to %v_end sections" .Opts.Upper .Opts.Upper)
	(printf "of the source file %v." .Opts.Input)
	""
	"Modify the source file instead of this one.")}}
#include <string.h>
#include "{{.Opts.HeaderName}}"
#include "{{.Opts.DefsName}}"
#include "{{.Opts.HelperName}}"

{{.Body | trim}}
{{end}}`

const defsTemplate = `{{define "defs"}}{{template "banner" (banner . .Opts.DefsName
	(printf "It defines constants, structures and function declarations of %v," .Opts.Upper)
	(printf "extracted from the %v_defs sections of %v." .Opts.Upper .Opts.Input))}}
#ifndef {{.Opts.Upper}}_DEFS_H
#define {{.Opts.Upper}}_DEFS_H

#include <stdint.h>
#include <string.h>
#include "{{.Opts.HeaderName}}"
#include "{{.Opts.HelperName}}"
{{if .Defs}}
{{.Defs | trim}}
{{end}}{{if .Decls}}
{{join "\n" .Decls}}
{{end}}
#endif // {{.Opts.Upper}}_DEFS_H
{{end}}`

const linuxHelperTemplate = `{{define "linux-helper"}}{{template "banner" (banner . .Opts.HelperName
	"It defines kernel-style types and the helpers extracted modules expect."
	"Disable it with --no-helper to keep custom additions.")}}
#ifndef CC_HELPER_FUNCTION_H
#define CC_HELPER_FUNCTION_H

#include <stdint.h>
#include <stdbool.h>

typedef unsigned char        u8;
typedef unsigned short       u16;
typedef unsigned int         u32;
typedef unsigned long long   u64;
typedef signed char          s8;
typedef short                s16;
typedef int                  s32;
typedef long long            s64;

#define SK_PACING_NONE 0
#define SK_PACING_NEEDED 1
#define TCP_CA_Open 0

#define before(seq1, seq2)    ((s32)((seq1) - (seq2)) < 0)
#define before_eq(seq1, seq2) ((s32)((seq1) - (seq2)) <= 0)
#define after(seq1, seq2)     ((s32)((seq1) - (seq2)) > 0)
#define after_eq(seq1, seq2)  ((s32)((seq1) - (seq2)) >= 0)

#define min(x, y) ((x) < (y) ? (x) : (y))
#define max(x, y) ((x) > (y) ? (x) : (y))
#define min_t(type, x, y) ((type)(x) < (type)(y) ? (type)(x) : (type)(y))

static inline u64 div_u64(u64 dividend, u32 divisor)
{
    return dividend / divisor;
}

#define do_div(n, base) ({                      \
    u32 __base = (base);                        \
    u32 __rem;                                  \
    __rem = ((u64)(n)) % __base;                \
    (n) = ((u64)(n)) / __base;                  \
    __rem;                                      \
})

#define cmpxchg(ptr, old, new) (__sync_val_compare_and_swap(ptr, old, new))

#define MSEC_PER_SEC    1000L
#define USEC_PER_MSEC   1000L
#define NSEC_PER_USEC   1000L
#define NSEC_PER_MSEC   1000000L
#define USEC_PER_SEC    1000000L
#define NSEC_PER_SEC    1000000000L
#define FSEC_PER_SEC    1000000000000000LL

struct minmax_sample {
    u32 t;
    u32 v;
};

struct minmax {
    struct minmax_sample s[3];
};

static inline u32 minmax_get(const struct minmax *m)
{
    return m->s[0].v;
}

static inline u32 minmax_reset(struct minmax *m, u32 t, u32 meas)
{
    struct minmax_sample val = { .t = t, .v = meas };

    m->s[2] = m->s[1] = m->s[0] = val;
    return m->s[0].v;
}

static inline u32 minmax_subwin_update(struct minmax *m, u32 win, const struct minmax_sample *val)
{
    u32 dt = val->t - m->s[0].t;

    if (dt > win) {
        m->s[0] = m->s[1];
        m->s[1] = m->s[2];
        m->s[2] = *val;
        if (val->t - m->s[0].t > win) {
            m->s[0] = m->s[1];
            m->s[1] = m->s[2];
            m->s[2] = *val;
        }
    } else if (m->s[1].t == m->s[0].t && dt > win / 4) {
        m->s[2] = m->s[1] = *val;
    } else if (m->s[2].t == m->s[1].t && dt > win / 2) {
        m->s[2] = *val;
    }
    return m->s[0].v;
}

static inline u32 minmax_running_max(struct minmax *m, u32 win, u32 t, u32 meas)
{
    struct minmax_sample val = { .t = t, .v = meas };

    if (val.v >= m->s[0].v || val.t - m->s[2].t > win)
        return minmax_reset(m, t, meas);
    if (val.v >= m->s[1].v)
        m->s[2] = m->s[1] = val;
    else if (val.v >= m->s[2].v)
        m->s[2] = val;
    return minmax_subwin_update(m, win, &val);
}

static inline int fls64(u64 word)
{
    return word ? 64 - __builtin_clzll(word) : 0;
}

/* Placeholder, extracted modules only need a plausible value. */
struct tcp_sock;
static inline u32 tcp_min_rtt(const struct tcp_sock *tp)
{
    (void)tp;
    return 500;
}
{{- if .Clock}}

/* Jiffies of the clock advanced last, for code without a socket. */
#define tcp_jiffies32 (sim_clock_current ? sim_clock_current->jiffies : 0)
{{- end}}

#endif /* CC_HELPER_FUNCTION_H */
{{end}}`

const bsdHelperTemplate = `{{define "freebsd-helper"}}{{template "banner" (banner . .Opts.HelperName
	"It defines the helpers and macros extracted cc(4) modules expect."
	"Disable it with --no-helper to keep custom additions.")}}
#ifndef CC_HELPER_FUNCTION_H
#define CC_HELPER_FUNCTION_H

#include <stdint.h>
#include <stdio.h>
#include <stdbool.h>
#include "{{.Opts.HeaderName}}"

#define TCP_RTT_SHIFT 5
#define tick 1000000
#define V_tcp_initcwnd_segments 10
#define TCP_INFINITE_SSTHRESH 0x7fffffff

#define max(a, b) ((a) > (b) ? (a) : (b))
#define min(a, b) ((a) < (b) ? (a) : (b))
{{- if .Clock}}

/* Uptime of the clock advanced last, for code without a cc_var. */
static inline void getmicrouptime(struct timeval *tv)
{
    if (sim_clock_current == NULL) {
        tv->tv_sec = 0;
        tv->tv_usec = 0;
        return;
    }
    sim_clock_microuptime(sim_clock_current, tv);
}
{{- end}}

#endif /* CC_HELPER_FUNCTION_H */
{{end}}`

const linuxTestTemplate = `{{define "linux-test"}}{{template "banner" (banner . .Opts.TestName
	(printf "It replays CSV traces through the %v module." .Opts.Upper)
	(printf "Driver profile: %v." .Opts.Driver))}}
#include <stdio.h>
#include <stdlib.h>
#include <stdint.h>
#include <string.h>
#include "{{.Opts.HeaderName}}"
#include "{{.Opts.DefsName}}"
#include "{{.Opts.HelperName}}"

int main(int argc, char *argv[])
{
    if (argc < 2) {
        fprintf(stderr, "Usage: %s <input.csv>\n", argv[0]);
        return 1;
    }

    FILE *file = fopen(argv[1], "r");
    if (!file) {
        perror("Failed to open file");
        return 1;
    }

    struct sock *sk = calloc(1, sizeof(struct sock));
    if (!sk) {
        fprintf(stderr, "Failed to allocate memory for sock.\n");
        fclose(file);
        return 1;
    }
{{- if .CC}}

    sk->{{.CC}} = calloc(1, sizeof(struct {{.CC}}));
    if (!sk->{{.CC}}) {
        fprintf(stderr, "Failed to allocate memory for {{.CC}}.\n");
        free(sk);
        fclose(file);
        return 1;
    }
    struct {{.CC}} *ca = sk->{{.CC}};
    (void)ca;
{{- end}}
    struct tcp_sock *tp = &sk->tcp_sock;

{{- if eq .Opts.Driver "bbr"}}

    bbr_init(sk);
{{- else if eq .Opts.Driver "search"}}

    bictcp_search_reset(ca);
{{- else}}

    // USER NOTE: call the reset function of the protocol here, if needed.
{{- end}}

    tp->snd_ssthresh = TCP_INFINITE_SSTHRESH;
    tp->snd_cwnd = TCP_INIT_CWND;
    int EXIT_FLAG = 0;
    int LOSS_FLAG = 0;
    (void)EXIT_FLAG;
    (void)LOSS_FLAG;

    char line[512];
    int line_number = 0;

    printf("Processing CSV input: %s\n\n", argv[1]);

    while (fgets(line, sizeof(line), file)) {
        line_number++;

        if (line_number == 1 || line[0] == '#')
            continue;
{{- if .Profile}}
{{range .Decl}}
        {{.}}
{{- end}}
        if (sscanf(line, "{{.Profile.ScanFormat}}", {{.ScanArgs}}) != {{len .Profile.Columns}}) {
            fprintf(stderr, "Invalid line format at line %d: %s", line_number, line);
            continue;
        }
{{- if .Clock}}
        sim_clock_advance(&sk->clock, now_us);
{{- end}}
{{- end}}
{{- if eq .Opts.Driver "bbr"}}

        ca->round_start = round_start;
        minmax_reset(&ca->bw, 0, bbr_max_bw);

        struct rate_sample rs;
        memset(&rs, 0, sizeof(rs));
        rs.is_app_limited = app_limited;

        bbr_check_full_bw_reached(sk, &rs);

        if (bbr_full_bw_reached(sk) && EXIT_FLAG == 0) {
            printf("BBR Exits STARTUP Phase at %u us\n", now_us);
            EXIT_FLAG = 1;
        }

        printf("Line %d:\n", line_number);
        printf("  now_us: %u\n", now_us);
        printf("  bbr_full_bw: %u\n", (u32)ca->full_bw);
        printf("  bbr_max_bw: %u\n", bbr_max_bw);
        printf("  full_bw_cnt: %u\n", (u32)ca->full_bw_cnt);
        printf("  round_start: %u\n", (u32)ca->round_start);
        printf("  app_limited: %u\n", (u32)rs.is_app_limited);
        printf("  full_bw_reached: %s\n", bbr_full_bw_reached(sk) ? "Yes" : "No");
        printf("  bbr_state: %u\n", bbr_state);
        printf("\n");
{{- else if eq .Opts.Driver "search"}}

        tp->tcp_mstamp = now_us;
        tp->bytes_acked = bytes_acked;
        tp->mss_cache = mss;

        if (LOSS_FLAG == 0 && lost > 0)
            LOSS_FLAG = 1;

        search_update(sk, rtt_us);

        if (tp->snd_ssthresh == tp->snd_cwnd && EXIT_FLAG == 0) {
            printf("Exit Slow Start at %u\n", now_us);
            EXIT_FLAG = 1;
        }

        // USER NOTE: print protocol state here, e.g. the SEARCH bins.
        printf("Line %d:\n", line_number);
        printf("  now_us: %u\n", now_us);
        printf("  bytes_acked: %llu\n", bytes_acked);
        printf("  mss: %u\n", mss);
        printf("  rtt_us: %u\n", rtt_us);
        printf("  loss happen: %u\n", LOSS_FLAG);
        printf("\n");
{{- else}}

        // USER NOTE: parse the row, e.g.
        //     u32 now_us, rtt_us;
        //     if (sscanf(line, "%u,%u", &now_us, &rtt_us) != 2)
        //         continue;
        // then set the parsed values on the mock structures,
        // call the protocol entry points and print "label: value" lines.
        printf("Line %d: %s", line_number, line);
{{- end}}
    }
{{- if .CC}}

    free(sk->{{.CC}});
{{- end}}
    free(sk);
    fclose(file);

    printf("Finished processing.\n");
    return 0;
}
{{end}}`

const bsdTestTemplate = `{{define "freebsd-test"}}{{template "banner" (banner . .Opts.TestName
	(printf "It replays CSV traces through the %v module." .Opts.Upper)
	(printf "Driver profile: %v." .Opts.Driver))}}
#include <stdio.h>
#include <stdlib.h>
#include <stdint.h>
#include <string.h>
#include "{{.Opts.HeaderName}}"
#include "{{.Opts.DefsName}}"
#include "{{.Opts.HelperName}}"

int main(int argc, char *argv[])
{
    if (argc < 2) {
        fprintf(stderr, "Usage: %s <input.csv>\n", argv[0]);
        return 1;
    }

    FILE *file = fopen(argv[1], "r");
    if (!file) {
        perror("Failed to open file");
        return 1;
    }

    struct tcpcb *tp = calloc(1, sizeof(struct tcpcb));
    struct cc_var ccv;
    memset(&ccv, 0, sizeof(ccv));
    ccv.ccvc.tcp = tp;
{{- if .CC}}
    struct {{.CC}} *ca = calloc(1, sizeof(struct {{.CC}}));
    ccv.cc_data = ca;
{{- end}}

    // USER NOTE: call the reset function of the protocol here, if needed.

    tp->snd_ssthresh = TCP_INFINITE_SSTHRESH;
    tp->snd_cwnd = V_tcp_initcwnd_segments;

    char line[512];
    int line_number = 0;

    printf("Processing CSV input: %s\n\n", argv[1]);

    while (fgets(line, sizeof(line), file)) {
        line_number++;

        if (line_number == 1 || line[0] == '#')
            continue;

        // USER NOTE: parse the row, set the parsed values on tp and ccv,
{{- if .Clock}}
        // advance the clock with sim_clock_advance(&ccv.clock, now_us),
{{- end}}
        // call the protocol entry points and print "label: value" lines.
        printf("Line %d: %s", line_number, line);
    }
{{- if .CC}}

    free(ca);
{{- end}}
    free(tp);
    fclose(file);

    printf("Finished processing.\n");
    return 0;
}
{{end}}`

const makefileTemplate = "{{define \"Makefile\" -}}\n" +
	"# *****************************************************************************\n" +
	"# * Automatically generated Makefile\n" +
	"# * by cc-extract on {{.Stamp}}.\n" +
	"# *\n" +
	"# * WARNING: rerunning cc-extract overwrites manual changes of this file.\n" +
	"# *****************************************************************************\n" +
	"\n" +
	"# Variables\n" +
	"CC = {{.Opts.CC}}\n" +
	"CFLAGS = {{.Opts.CFlags}}\n" +
	"EXEC = {{.Opts.ExecName}}\n" +
	"SRC = {{.Opts.ModuleName}} {{.Opts.DriverName}}\n" +
	"\n" +
	"# The default rule\n" +
	"all: $(EXEC)\n" +
	"\n" +
	"$(EXEC): $(SRC)\n" +
	"\t$(CC) -o $(EXEC) $(SRC) $(CFLAGS)\n" +
	"\n" +
	"clean:\n" +
	"\trm -f $(EXEC)\n" +
	"\n" +
	"run: $(EXEC)\n" +
	"\t./$(EXEC)\n" +
	"\n" +
	".PHONY: all clean run\n" +
	"{{end}}"
