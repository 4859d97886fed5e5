package approval

import (
	"bytes"
	"strings"
	"testing"
)

func interactive() bool { return true }

func TestAsk_Approve(t *testing.T) {
	var out bytes.Buffer
	a := &Approver{In: strings.NewReader("a\n"), Out: &out, Interactive: interactive}

	res := a.Ask(Prompt{
		Subject:        "rm -rf build",
		TriggeredRules: []string{"rm-recursive-force"},
		Reasons:        []string{"rm with recursive and force flags"},
	})

	if !res.Approved || res.UserAction != ActionApproveOnce {
		t.Errorf("expected approval, got %+v", res)
	}
	for _, want := range []string{"rm -rf build", "rm-recursive-force", "recursive and force"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("prompt should mention %q:\n%s", want, out.String())
		}
	}
}

func TestAsk_RetriesThenDenies(t *testing.T) {
	var out bytes.Buffer
	a := &Approver{In: strings.NewReader("maybe\nNO\n"), Out: &out, Interactive: interactive}

	res := a.Ask(Prompt{Subject: "make"})
	if res.Approved || res.UserAction != ActionDeny {
		t.Errorf("expected deny, got %+v", res)
	}
	if !strings.Contains(out.String(), "Invalid input") {
		t.Error("expected a retry message for invalid input")
	}
}

func TestAsk_AnswerWithoutNewline(t *testing.T) {
	a := &Approver{In: strings.NewReader("y"), Out: &bytes.Buffer{}, Interactive: interactive}
	if res := a.Ask(Prompt{Subject: "make"}); !res.Approved {
		t.Errorf("expected approval on final unterminated line, got %+v", res)
	}
}

func TestAsk_EOF(t *testing.T) {
	a := &Approver{In: strings.NewReader(""), Out: &bytes.Buffer{}, Interactive: interactive}
	res := a.Ask(Prompt{Subject: "make"})
	if res.Approved || res.UserAction != ActionReadError {
		t.Errorf("expected read error denial, got %+v", res)
	}
}

func TestAsk_NonInteractive(t *testing.T) {
	var out bytes.Buffer
	a := &Approver{In: strings.NewReader("a\n"), Out: &out, Interactive: func() bool { return false }}

	res := a.Ask(Prompt{Subject: "make"})
	if res.Approved || res.UserAction != ActionNonInteractive {
		t.Errorf("expected auto deny, got %+v", res)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be printed without a terminal, got %q", out.String())
	}
}
