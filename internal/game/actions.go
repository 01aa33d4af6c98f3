package game

import "sort"

// Nomination 表示内鬼在刺杀阶段提交的目标提名。
type Nomination struct {
	Actor  int
	Target int
	seq    int
}

// Vote 表示存活座位在投票阶段提交的放逐票。
type Vote struct {
	Voter     int
	Target    int
	Rationale string
	seq       int
}

// actionSet 收集当前阶段实例内提交的全部动作。
// 同一提交者重复提交时覆盖待定值，并获得新的提交序号，
// 序号在整个阶段实例内单调递增，是刺杀提名的裁决顺序依据。
type actionSet struct {
	round       int
	phase       Phase
	nextSeq     int
	nominations map[int]*Nomination
	votes       map[int]*Vote
}

func newActionSet(round int, phase Phase) *actionSet {
	return &actionSet{
		round:       round,
		phase:       phase,
		nominations: make(map[int]*Nomination),
		votes:       make(map[int]*Vote),
	}
}

// setNomination 记录或覆盖一个刺杀提名。
func (a *actionSet) setNomination(actor, target int) {
	a.nextSeq++
	a.nominations[actor] = &Nomination{Actor: actor, Target: target, seq: a.nextSeq}
}

// setVote 记录或覆盖一张放逐票。
func (a *actionSet) setVote(voter, target int, rationale string) {
	a.nextSeq++
	a.votes[voter] = &Vote{Voter: voter, Target: target, Rationale: rationale, seq: a.nextSeq}
}

// orderedNominations 按提交序号返回提名。
func (a *actionSet) orderedNominations() []*Nomination {
	out := make([]*Nomination, 0, len(a.nominations))
	for _, nom := range a.nominations {
		out = append(out, nom)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// allVotes 返回当前收集到的全部放逐票。
func (a *actionSet) allVotes() []*Vote {
	out := make([]*Vote, 0, len(a.votes))
	for _, vote := range a.votes {
		out = append(out, vote)
	}
	return out
}

// complete 报告阶段的所有合法动作是否都已提交，满足时阶段可以提前关闭。
func (a *actionSet) complete(m *Match) bool {
	switch a.phase {
	case PhaseMurder:
		for i, slot := range m.Slots {
			if slot.Role == RoleTraitor && slot.Alive() {
				if _, ok := a.nominations[i]; !ok {
					return false
				}
			}
		}
		return true
	case PhaseVoting:
		for i, slot := range m.Slots {
			if slot.Alive() {
				if _, ok := a.votes[i]; !ok {
					return false
				}
			}
		}
		return true
	default:
		return false
	}
}
