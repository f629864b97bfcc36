package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/medgraph/internal/rag"
)

const rule = "----------------------------------------"

func newChatCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive symptom consultation grounded in the knowledge graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, false)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "欢迎使用智能医疗对话系统")
			fmt.Fprintln(out, "输入症状描述，获取专业医疗建议；输入 config 调整设置，quit 退出")
			if a.Graph.Connected() {
				fmt.Fprintf(out, "知识图谱已连接 (%s)\n", a.Graph.Backend())
			} else {
				fmt.Fprintln(out, "知识图谱不可用，回答将仅基于AI通用建议")
			}
			if !a.CompletionConfigured() {
				fmt.Fprintln(out, "AI 服务未配置 (completion.api_key)，暂时无法生成建议")
			}

			lctx, stop := context.WithCancel(ctx)
			defer stop()
			c := &chatLoop{
				session: a.Session(),
				out:     out,
				lines:   readLines(lctx, cmd.InOrStdin()),
			}
			return c.run(ctx)
		},
	}
	f := cmd.Flags()
	f.Float64("temperature", 0, "sampling temperature (0.0-1.0)")
	bindFlag(f, "temperature", "chat.temperature")
	f.Bool("verbose", false, "print extracted entities and matched diseases")
	bindFlag(f, "verbose", "chat.verbose")
	f.Bool("stream", false, "print the answer as it is generated")
	bindFlag(f, "stream", "chat.stream")
	return cmd
}

// readLines feeds stdin lines to a channel so the loop can also watch ctx.
// The channel is closed at EOF or once ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

type chatLoop struct {
	session *rag.Session
	out     io.Writer
	lines   <-chan string
}

// prompt prints p and waits for one line. ok is false at EOF or interrupt.
func (c *chatLoop) prompt(ctx context.Context, p string) (line string, ok bool) {
	fmt.Fprint(c.out, p)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok = <-c.lines:
		return strings.TrimSpace(line), ok
	}
}

func (c *chatLoop) run(ctx context.Context) error {
	for {
		in, ok := c.prompt(ctx, "\n请描述您的症状: ")
		if !ok {
			if ctx.Err() != nil {
				fmt.Fprintln(c.out, "\n用户中断，感谢使用！")
			} else {
				fmt.Fprintln(c.out, "\n感谢使用，祝您身体健康！")
			}
			return nil
		}
		switch strings.ToLower(in) {
		case "":
			continue
		case "quit", "exit", "退出":
			fmt.Fprintln(c.out, "感谢使用，祝您身体健康！")
			return nil
		case "config":
			c.configure(ctx)
			continue
		}
		c.turn(ctx, in)
	}
}

func (c *chatLoop) configure(ctx context.Context) {
	s := c.session.Settings()
	fmt.Fprintln(c.out, "\n当前配置:")
	fmt.Fprintf(c.out, "   - 随机度(temperature): %v\n", s.Temperature)
	fmt.Fprintf(c.out, "   - 显示详细信息: %v\n", s.Verbose)

	raw, ok := c.prompt(ctx, fmt.Sprintf("输入新的随机度(0.0-1.0, 当前%v): ", s.Temperature))
	if !ok {
		return
	}
	if raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fmt.Fprintln(c.out, "配置格式错误，保持原设置")
			return
		}
		s.Temperature = rag.ClampTemperature(t)
	}
	cur := "n"
	if s.Verbose {
		cur = "y"
	}
	raw, ok = c.prompt(ctx, fmt.Sprintf("显示详细信息? (y/n, 当前%s): ", cur))
	if !ok {
		return
	}
	switch strings.ToLower(raw) {
	case "y":
		s.Verbose = true
	case "n":
		s.Verbose = false
	}
	s.Temperature = c.session.SetTemperature(s.Temperature)
	c.session.SetVerbose(s.Verbose)
	fmt.Fprintf(c.out, "配置已更新: temperature=%v, 详细信息=%v\n", s.Temperature, s.Verbose)
}

func (c *chatLoop) turn(ctx context.Context, text string) {
	fmt.Fprintln(c.out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(c.out, "正在分析您的症状...")

	settings := c.session.Settings()
	if settings.Stream {
		fmt.Fprintln(c.out, "医疗AI助手回复:")
		fmt.Fprintln(c.out, rule)
		res := c.session.TurnStream(ctx, text, func(delta string) { fmt.Fprint(c.out, delta) })
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, rule)
		if settings.Verbose {
			c.details(res)
		}
		return
	}

	res := c.session.Turn(ctx, text)
	if settings.Verbose {
		c.details(res)
	}
	fmt.Fprintln(c.out, "医疗AI助手回复:")
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, res.Answer)
	fmt.Fprintln(c.out, rule)
}

func (c *chatLoop) details(res rag.TurnResult) {
	if b, err := json.MarshalIndent(res.Extraction, "", "  "); err == nil {
		fmt.Fprintf(c.out, "提取信息: %s\n", b)
	}
	if len(res.Diseases) > 0 {
		fmt.Fprintf(c.out, "找到相关疾病: %s\n", strings.Join(res.Diseases, ", "))
	} else {
		fmt.Fprintln(c.out, "知识图谱中未找到直接相关信息")
	}
}
