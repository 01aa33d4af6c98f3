package game

import "sort"

// resolveMurder 在刺杀阶段关闭时裁决受害者。
//
// 规则：所有提名的目标一致时该目标死亡；不一致时取提交序号最早的
// 提名（确定性裁决，结果影响胜负，故固定为先到先定）；没有任何
// 提名时本回合无人死亡。自刺与刺杀队友在提交时即被拒绝，这里不再
// 校验。对同一动作集合重复调用结果相同。
func resolveMurder(nominations []*Nomination) (victim int, ok bool) {
	if len(nominations) == 0 {
		return 0, false
	}
	return nominations[0].Target, true
}

// resolveVote 在投票阶段关闭时裁决放逐对象。
//
// 规则：得票严格最多者被放逐；最高票并列时无人被放逐（显式的
// 平票不放逐策略）；弃权者不产生计票条目。对同一动作集合重复
// 调用结果相同。
func resolveVote(votes []*Vote) (target int, banished bool) {
	if len(votes) == 0 {
		return 0, false
	}
	tally := make(map[int]int, len(votes))
	for _, vote := range votes {
		tally[vote.Target]++
	}

	targets := make([]int, 0, len(tally))
	for t := range tally {
		targets = append(targets, t)
	}
	sort.Ints(targets)

	best, bestCount, tied := 0, 0, false
	for _, t := range targets {
		switch {
		case tally[t] > bestCount:
			best, bestCount, tied = t, tally[t], false
		case tally[t] == bestCount:
			tied = true
		}
	}
	if tied {
		return 0, false
	}
	return best, true
}

// evaluateWin 在每次座位进入终态后检查胜负。按顺序：
//  1. 存活内鬼为零 → 无辜者获胜；
//  2. 存活内鬼数不少于存活无辜者数 → 内鬼获胜；
//  3. 否则对局继续。
//
// 兜底：双方同时无人存活的退化局面直接终局且不记录胜方，
// 而不是让对局永远继续。
func evaluateWin(s Snapshot) (Winner, bool) {
	traitors := s.LivingTraitors()
	innocents := s.LivingInnocents()

	if traitors == 0 && innocents == 0 {
		return WinnerNone, true
	}
	if traitors == 0 {
		return WinnerInnocents, true
	}
	if traitors >= innocents {
		return WinnerTraitors, true
	}
	return WinnerNone, false
}
