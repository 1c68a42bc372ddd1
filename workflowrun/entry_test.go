package workflowrun

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/agentflow/core/progress"
)

func TestRun_WorkerMode(t *testing.T) {
	h := newHarness(t, agentFixture{id: "echo"})

	w := &recordingWriter{}
	res, err := h.runner.Run(context.Background(), RunInput{
		AgentID:  "echo",
		BasePath: h.dirs["echo"],
		Input:    map[string]any{"msg": "hi"},
		Writer:   w,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if !reflect.DeepEqual(res.Output, map[string]any{"msg": "hi"}) {
		t.Fatalf("unexpected output: %#v", res.Output)
	}
	if res.Meta.TokensUsed == 0 {
		t.Fatalf("expected non-zero token usage")
	}

	chunks := w.snapshot()
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	last := chunks[len(chunks)-1]
	if last.Type != progress.TypeFinish {
		t.Fatalf("expected last chunk to be a finish chunk, got %+v", last)
	}
	if !w.closed {
		t.Fatalf("expected stream to be closed")
	}
}

func TestRun_ManagerMode_SkipSynthesis(t *testing.T) {
	h := newHarness(t,
		agentFixture{id: "echo"},
		agentFixture{id: "greeter",
			config: map[string]any{"skipSynthesis": true, "outputArtifact": "echo"},
			workflowMD: "## 1. Greet\n" +
				"```yaml\n" +
				"call: echo\n" +
				"input:\n" +
				"  msg: \"${input.msg}\"\n" +
				"```\n",
		},
	)

	w := &recordingWriter{}
	res, err := h.runner.Run(context.Background(), RunInput{
		AgentID:  "greeter",
		BasePath: h.dirs["greeter"],
		Input:    map[string]any{"msg": "hello"},
		Writer:   w,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if !reflect.DeepEqual(res.Output, map[string]any{"msg": "hello"}) {
		t.Fatalf("unexpected output: %#v", res.Output)
	}

	chunks := w.snapshot()
	var sawStep, sawHundred, sawFinish bool
	for _, c := range chunks {
		if c.Step == "Greet" {
			sawStep = true
		}
		if c.Type == progress.TypeProgress && c.EstimatedProgress == 100 {
			sawHundred = true
		}
		if c.Type == progress.TypeFinish {
			sawFinish = true
		}
	}
	if !sawStep {
		t.Fatalf("expected a progress chunk for step %q, got %+v", "Greet", chunks)
	}
	if !sawHundred {
		t.Fatalf("expected a final 100%% progress chunk, got %+v", chunks)
	}
	if !sawFinish {
		t.Fatalf("expected a finish chunk, got %+v", chunks)
	}
}

func TestRun_ManagerMode_MissingOutputArtifact(t *testing.T) {
	h := newHarness(t,
		agentFixture{id: "echo"},
		agentFixture{id: "greeter",
			config: map[string]any{"skipSynthesis": true, "outputArtifact": "nope"},
			workflowMD: "## 1. Greet\n" +
				"```yaml\n" +
				"call: echo\n" +
				"```\n",
		},
	)

	w := &recordingWriter{}
	res, err := h.runner.Run(context.Background(), RunInput{
		AgentID:  "greeter",
		BasePath: h.dirs["greeter"],
		Input:    map[string]any{},
		Writer:   w,
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Error.Code != "FATAL_ERROR" {
		t.Fatalf("expected FATAL_ERROR, got %q", res.Error.Code)
	}
	if !strings.Contains(res.Error.Message, "echo") {
		t.Fatalf("expected message to list available artifacts, got %q", res.Error.Message)
	}

	chunks := w.snapshot()
	if len(chunks) == 0 || chunks[len(chunks)-1].Type != progress.TypeError {
		t.Fatalf("expected the stream to end with an error chunk, got %+v", chunks)
	}
}

func TestRun_ManagerMode_Synthesis(t *testing.T) {
	h := newHarness(t,
		agentFixture{id: "echo"},
		agentFixture{id: "greeter",
			workflowMD: "## 1. Greet\n" +
				"```yaml\n" +
				"call: echo\n" +
				"```\n",
		},
	)

	w := &recordingWriter{}
	res, err := h.runner.Run(context.Background(), RunInput{
		AgentID:  "greeter",
		BasePath: h.dirs["greeter"],
		Input:    map[string]any{},
		Writer:   w,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}

	out, ok := res.Output.(map[string]any)
	if !ok {
		t.Fatalf("expected synthesis output to be the artifacts map, got %#v", res.Output)
	}
	if _, ok := out["echo"]; !ok {
		t.Fatalf("expected synthesized output to carry the %q artifact, got %#v", "echo", out)
	}
}
