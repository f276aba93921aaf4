package launchd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultLabel names the relay agent in the user's GUI domain.
const DefaultLabel = "com.discord-status.relay"

// InstallOptions config for creating/loading a launchd agent.
type InstallOptions struct {
	Label       string
	Interval    time.Duration
	ProgramPath string   // absolute path to this binary
	ProgramArgs []string // args after ProgramPath
	StdOutPath  string
	StdErrPath  string
	PlistPath   string // optional custom plist path
}

func DefaultAgentPath(label string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
}

// IntervalFromSchedule converts an "@every" cron spec into a launchd StartInterval.
// launchd only fires on fixed intervals, so calendar specs are rejected.
func IntervalFromSchedule(spec string) (time.Duration, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	every, ok := sched.(cron.ConstantDelaySchedule)
	if !ok {
		return 0, fmt.Errorf("schedule %q is not an @every interval", spec)
	}
	if every.Delay < time.Minute {
		return time.Minute, nil
	}
	return every.Delay, nil
}

type plistWriter struct {
	buf bytes.Buffer
}

func (w *plistWriter) key(k string) {
	w.buf.WriteString("    <key>")
	w.escape(k)
	w.buf.WriteString("</key>\n")
}

func (w *plistWriter) str(indent, v string) {
	w.buf.WriteString(indent + "<string>")
	w.escape(v)
	w.buf.WriteString("</string>\n")
}

func (w *plistWriter) escape(s string) {
	_ = xml.EscapeText(&w.buf, []byte(s))
}

// BuildPlist renders the agent definition for a StartInterval job.
func BuildPlist(opt InstallOptions) ([]byte, error) {
	if opt.Label == "" {
		return nil, errors.New("label required")
	}
	if opt.ProgramPath == "" {
		return nil, errors.New("program path required")
	}
	if opt.Interval <= 0 {
		opt.Interval = 2 * time.Minute
	}
	if opt.StdOutPath == "" || opt.StdErrPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			def := filepath.Join(home, "Library", "Logs", "Discord-Status", "relay.launchd.log")
			if opt.StdOutPath == "" {
				opt.StdOutPath = def
			}
			if opt.StdErrPath == "" {
				opt.StdErrPath = def
			}
		}
	}

	var w plistWriter
	w.buf.WriteString(xml.Header)
	w.buf.WriteString("<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n")
	w.buf.WriteString("<plist version=\"1.0\">\n  <dict>\n")

	w.key("Label")
	w.str("    ", opt.Label)

	w.key("ProgramArguments")
	w.buf.WriteString("    <array>\n")
	for _, a := range append([]string{opt.ProgramPath}, opt.ProgramArgs...) {
		w.str("      ", a)
	}
	w.buf.WriteString("    </array>\n")

	w.key("StartInterval")
	w.buf.WriteString("    <integer>" + strconv.Itoa(int(opt.Interval/time.Second)) + "</integer>\n")

	// one cycle per tick; launchd must not restart a finished run
	w.key("RunAtLoad")
	w.buf.WriteString("    <true/>\n")
	w.key("KeepAlive")
	w.buf.WriteString("    <false/>\n")

	w.key("StandardOutPath")
	w.str("    ", opt.StdOutPath)
	w.key("StandardErrorPath")
	w.str("    ", opt.StdErrPath)

	w.buf.WriteString("  </dict>\n</plist>\n")
	return w.buf.Bytes(), nil
}

// Install writes the plist and loads it via launchctl.
func Install(opt InstallOptions) (string, error) {
	if runtime.GOOS != "darwin" {
		return "", errors.New("launchd is only available on macOS")
	}
	plistPath := opt.PlistPath
	if strings.TrimSpace(plistPath) == "" {
		var err error
		plistPath, err = DefaultAgentPath(opt.Label)
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return "", err
	}
	data, err := BuildPlist(opt)
	if err != nil {
		return "", err
	}
	if opt.StdOutPath != "" {
		_ = os.MkdirAll(filepath.Dir(opt.StdOutPath), 0o755)
	}
	if err := os.WriteFile(plistPath, data, 0o644); err != nil {
		return "", err
	}

	lctl := launchctlPath()
	if lctl == "" {
		return plistPath, errors.New("launchctl not found in /bin, /usr/bin, or PATH")
	}

	domain := fmt.Sprintf("gui/%d", os.Getuid())
	if err := exec.Command(lctl, "bootstrap", domain, plistPath).Run(); err != nil {
		if err2 := exec.Command(lctl, "load", "-w", plistPath).Run(); err2 != nil {
			return plistPath, fmt.Errorf("launchctl bootstrap/load failed: %v / %v", err, err2)
		}
	} else {
		_ = exec.Command(lctl, "enable", domain+"/"+opt.Label).Run()
	}
	return plistPath, nil
}

// Uninstall unloads and removes the plist.
func Uninstall(label string, plistPath string) error {
	if runtime.GOOS != "darwin" {
		return errors.New("launchd is only available on macOS")
	}
	if strings.TrimSpace(plistPath) == "" {
		var err error
		plistPath, err = DefaultAgentPath(label)
		if err != nil {
			return err
		}
	}
	lctl := launchctlPath()
	if lctl == "" {
		return errors.New("launchctl not found")
	}
	domain := fmt.Sprintf("gui/%d", os.Getuid())
	if err := exec.Command(lctl, "bootout", domain, plistPath).Run(); err != nil {
		_ = exec.Command(lctl, "unload", "-w", plistPath).Run()
	}
	if err := os.Remove(plistPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Status returns whether the agent is loaded and a short human string.
func Status(label string) (bool, string) {
	if runtime.GOOS != "darwin" || strings.TrimSpace(label) == "" {
		return false, "unsupported"
	}
	lctl := launchctlPath()
	if lctl == "" {
		return false, "launchctl not found"
	}
	out, err := exec.Command(lctl, "print", fmt.Sprintf("gui/%d/%s", os.Getuid(), label)).CombinedOutput()
	if err != nil {
		return false, "not loaded"
	}
	for _, ln := range strings.Split(string(out), "\n") {
		if strings.Contains(ln, "state = ") {
			return true, strings.TrimSpace(ln)
		}
	}
	return true, "loaded"
}

func launchctlPath() string {
	for _, c := range []string{"/bin/launchctl", "/usr/bin/launchctl"} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	if p, err := exec.LookPath("launchctl"); err == nil {
		return p
	}
	return ""
}

// ExtractStartInterval best-effort parse of StartInterval from a plist file.
func ExtractStartInterval(plistPath string) (time.Duration, error) {
	b, err := os.ReadFile(plistPath)
	if err != nil {
		return 0, err
	}
	s := string(b)
	i := strings.Index(s, "<key>StartInterval</key>")
	if i < 0 {
		return 0, errors.New("StartInterval not found")
	}
	sub := s[i:]
	open := strings.Index(sub, "<integer>")
	end := strings.Index(sub, "</integer>")
	if open < 0 || end < 0 || end <= open+len("<integer>") {
		return 0, errors.New("invalid integer tag")
	}
	n, err := strconv.Atoi(strings.TrimSpace(sub[open+len("<integer>") : end]))
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
