package match

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Countdown:       5 * time.Second,
		Duration:        180 * time.Second,
		TargetScore:     500,
		KillBonus:       50,
		MinReadyPlayers: 1,
	}
}

func TestPhaseProgression(t *testing.T) {
	c := NewCoordinator(testConfig(), nil, nil)
	now := time.Unix(0, 0)

	if c.Phase() != PhaseReady {
		t.Fatalf("expected READY at start, got %s", c.Phase())
	}
	if c.Advance(1, now) {
		t.Fatalf("READY must not advance on its own")
	}

	if !c.PlayerReady(1, now) {
		t.Fatalf("first ready should arm the countdown")
	}
	if c.Phase() != PhaseCountdown {
		t.Fatalf("expected COUNTDOWN, got %s", c.Phase())
	}
	if got := c.RemainingSeconds(now); got != 5 {
		t.Fatalf("expected 5s countdown, got %d", got)
	}

	if c.Advance(2, now.Add(4*time.Second)) {
		t.Fatalf("countdown must not expire early")
	}
	if !c.Advance(3, now.Add(5*time.Second)) {
		t.Fatalf("countdown should expire into PLAYING")
	}
	if c.Phase() != PhasePlaying {
		t.Fatalf("expected PLAYING, got %s", c.Phase())
	}
	playStart := now.Add(5 * time.Second)
	if got := c.RemainingSeconds(playStart); got != 180 {
		t.Fatalf("expected 180s match clock, got %d", got)
	}

	if !c.Advance(4, playStart.Add(180*time.Second)) {
		t.Fatalf("match clock expiry should end the game")
	}
	if c.Phase() != PhaseGameOver {
		t.Fatalf("expected GAME_OVER, got %s", c.Phase())
	}
	if c.Advance(5, playStart.Add(200*time.Second)) {
		t.Fatalf("GAME_OVER is terminal without restart")
	}
}

func TestScoreTargetEndsMatchEarly(t *testing.T) {
	c := NewCoordinator(testConfig(), nil, nil)
	now := time.Unix(0, 0)
	c.PlayerReady(1, now)
	c.Advance(2, now.Add(5*time.Second))

	c.AwardDamage("p1", 480)
	if c.Advance(3, now.Add(6*time.Second)) {
		t.Fatalf("expected match to continue below target")
	}
	c.AwardDamage("p1", 15)
	c.AwardKill(3, "p1")
	if !c.Advance(4, now.Add(7*time.Second)) {
		t.Fatalf("expected total %d >= 500 to end the match", c.Total())
	}
	if c.Phase() != PhaseGameOver {
		t.Fatalf("expected GAME_OVER, got %s", c.Phase())
	}
	if c.Winner() != "p1" {
		t.Fatalf("expected p1 to win, got %q", c.Winner())
	}
}

func TestScoringCreditsPersonalAndTotal(t *testing.T) {
	c := NewCoordinator(testConfig(), nil, nil)
	now := time.Unix(0, 0)
	c.PlayerReady(1, now)
	c.Advance(2, now.Add(5*time.Second))

	c.AwardDamage("p1", 25)
	c.AwardKill(3, "p1")
	c.RecordDeath("p2")

	scores := c.Scores()
	if line := scores["p1"]; line.Score != 75 || line.Kills != 1 {
		t.Fatalf("expected p1 at 75 with 1 kill, got %+v", line)
	}
	if line := scores["p2"]; line.Deaths != 1 {
		t.Fatalf("expected p2 with 1 death, got %+v", line)
	}
	if c.Total() != 75 {
		t.Fatalf("expected aggregate 75, got %d", c.Total())
	}
}

func TestAwardsIgnoredOutsidePlaying(t *testing.T) {
	c := NewCoordinator(testConfig(), nil, nil)
	c.AwardDamage("p1", 25)
	c.AwardKill(1, "p1")
	if c.Total() != 0 {
		t.Fatalf("expected no score outside PLAYING, got %d", c.Total())
	}
}

func TestRestartResetsEverything(t *testing.T) {
	c := NewCoordinator(testConfig(), nil, nil)
	now := time.Unix(0, 0)
	c.PlayerReady(1, now)
	c.Advance(2, now.Add(5*time.Second))
	c.AwardDamage("p1", 600)
	c.Advance(3, now.Add(6*time.Second))

	oldID := c.MatchID()
	oldGen := c.Generation()
	c.Restart(4, now.Add(10*time.Second))

	if c.Phase() != PhaseReady {
		t.Fatalf("expected READY after restart, got %s", c.Phase())
	}
	if c.Total() != 0 || len(c.Scores()) != 0 {
		t.Fatalf("expected empty score table after restart")
	}
	if c.Generation() != oldGen+1 {
		t.Fatalf("expected generation bump %d -> %d", oldGen, c.Generation())
	}
	if c.MatchID() == oldID {
		t.Fatalf("expected fresh match id after restart")
	}
}

func TestTaskQueueRunsDueTasks(t *testing.T) {
	q := NewTaskQueue()
	now := time.Unix(0, 0)
	ran := 0
	q.Schedule(now.Add(time.Second), 1, func(time.Time) { ran++ })
	q.Schedule(now.Add(3*time.Second), 1, func(time.Time) { ran++ })

	if got := q.RunDue(now.Add(500*time.Millisecond), 1); got != 0 {
		t.Fatalf("expected nothing due yet, ran %d", got)
	}
	if got := q.RunDue(now.Add(time.Second), 1); got != 1 {
		t.Fatalf("expected one task due, ran %d", got)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one task pending, got %d", q.Len())
	}
	if got := q.RunDue(now.Add(5*time.Second), 1); got != 1 {
		t.Fatalf("expected final task due, ran %d", got)
	}
	if ran != 2 {
		t.Fatalf("expected both tasks to run, got %d", ran)
	}
}

func TestTaskQueueDiscardsStaleGenerations(t *testing.T) {
	q := NewTaskQueue()
	now := time.Unix(0, 0)
	ran := false
	q.Schedule(now.Add(time.Second), 1, func(time.Time) { ran = true })

	if got := q.RunDue(now.Add(2*time.Second), 2); got != 0 {
		t.Fatalf("expected stale task discarded, ran %d", got)
	}
	if ran {
		t.Fatalf("stale task must not execute")
	}
	if q.Len() != 0 {
		t.Fatalf("expected stale task dropped from queue, %d left", q.Len())
	}
}
