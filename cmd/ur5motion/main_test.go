package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/ur5lab/ur5motion/components/arm"
	"github.com/ur5lab/ur5motion/services/sorter"
)

const homePosition = "--position=-0.271093,0.042922,0.590381"

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"ur5motion"}, args...))
	return out.String(), err
}

func testConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	test.That(t, os.WriteFile(path, []byte("gripper:\n  settle_seconds: 0\nlog_level: warn\n"), 0o600), test.ShouldBeNil)
	return path
}

func TestFK(t *testing.T) {
	out, err := runApp(t, "fk")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "position:       -0.27109 0.04292 0.59038")

	out, err = runApp(t, "fk", "--joints=0,0,0,0,0,0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "position:       -0.81720 -0.37290 0.06280")

	_, err = runApp(t, "fk", "--joints=0,0,0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "needs 6 values")
}

func TestIK(t *testing.T) {
	out, err := runApp(t, "ik", homePosition)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "nearest")
	test.That(t, strings.Count(out, "nearest"), test.ShouldEqual, 1)

	_, err = runApp(t, "ik", "--position=3,0,0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no solution")

	_, err = runApp(t, "ik")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")
	_, err := runApp(t, "--config", testConfigFile(t),
		"move", "--position=-0.271093,0.042922,0.610381", "--approach", "--out", path, "--histogram")
	test.That(t, err, test.ShouldBeNil)

	//nolint:gosec
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()

	var cmds []arm.JointCommand
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var cmd arm.JointCommand
		test.That(t, json.Unmarshal(scanner.Bytes(), &cmd), test.ShouldBeNil)
		cmds = append(cmds, cmd)
	}
	// 2 cm at 0.1 m/s and 1 kHz
	test.That(t, len(cmds), test.ShouldBeGreaterThanOrEqualTo, 199)
	test.That(t, len(cmds), test.ShouldBeLessThanOrEqualTo, 200)
	test.That(t, cmds[len(cmds)-1].Tick, test.ShouldEqual, len(cmds))
	test.That(t, cmds[0].Gripper, test.ShouldHaveLength, 3)
}

func TestSort(t *testing.T) {
	out, err := runApp(t, "--config", testConfigFile(t), "sort", "--block=0.3,0.5,0.88", "--class", "3", "--id", "5")
	test.That(t, err, test.ShouldBeNil)

	var ack sorter.Acknowledgement
	test.That(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &ack), test.ShouldBeNil)
	test.That(t, ack, test.ShouldResemble, sorter.Acknowledgement{BlockID: 5, Result: sorter.ResultSuccess})

	// blocks off the table are rejected without an acknowledgement
	batch := filepath.Join(t.TempDir(), "blocks.yaml")
	test.That(t, os.WriteFile(batch, []byte("- {block_id: 1, class: 1, trace: true, position: {x: 0.7, y: 0.5, z: 0.88}}\n"), 0o600),
		test.ShouldBeNil)
	out, err = runApp(t, "--config", testConfigFile(t), "sort", "--trace", "--detections", batch)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldBeEmpty)

	_, err = runApp(t, "sort")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joints.png")
	_, err := runApp(t, "plot", "--position=-0.271093,0.042922,0.640381", "--out", path)
	test.That(t, err, test.ShouldBeNil)
	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	_, err = runApp(t, "plot", homePosition, "--out", path)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(path, []byte(`{"control": {"rate_hz": -1}}`), 0o600), test.ShouldBeNil)
	_, err := runApp(t, "--config", path, "fk")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "rate_hz")
}
