// Package snoop classifies decoded IGMP messages and mutates multicast
// group membership accordingly, implementing IGMP snooping: the switch
// observes query/report/leave traffic passing through without itself being
// a multicast router.
package snoop

import (
	"encoding/binary"

	"github.com/gopacket/gopacket/layers"

	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/mcast"
	"github.com/malbeclabs/l2switch/internal/metrics"
)

// groupKey converts a decoded IGMP group address to a mcast.GroupKey.
func groupKey(msg *layers.IGMP) mcast.GroupKey {
	ip := msg.GroupAddress.To4()
	if ip == nil {
		return 0
	}
	return mcast.GroupKey(binary.BigEndian.Uint32(ip))
}

// Handle dispatches a decoded IGMP message arriving on ingress, mutating
// stack's group membership and forwarding reports/queries per the snooping
// rules:
//   - Membership Query: elect ingress as the querier and fan the query to
//     every interface.
//   - v1/v2 Membership Report: if ingress is already the elected querier,
//     drop (a router's own report needs no snooping action); otherwise join
//     ingress to the group and forward the report to the querier.
//   - Leave Group: if the group exists, remove ingress from it; never
//     forwarded.
//   - anything else (including a v3 report, treated as a plain join since
//     source-specific filtering is out of scope): if ingress is the
//     querier, drop; otherwise join ingress to the group with no
//     forwarding.
func Handle(stack *mcast.Stack, recorder metrics.Recorder, msg *layers.IGMP, frame []byte, ingress *iface.Interface) {
	switch msg.Type {
	case layers.IGMPMembershipQuery:
		recorder.IGMPEvent("query")
		stack.SendQuery(ingress, frame)

	case layers.IGMPv1MembershipReport, layers.IGMPv2MembershipReport:
		recorder.IGMPEvent("report")
		if sameInterface(stack.Querier(), ingress) {
			return
		}
		g := stack.GetOrCreate(groupKey(msg))
		if g == nil {
			return
		}
		g.Add(ingress)
		stack.SendResponse(frame, ingress)

	case layers.IGMPLeaveGroup:
		recorder.IGMPEvent("leave")
		if g, ok := stack.Find(groupKey(msg)); ok {
			g.Remove(ingress)
		}

	default:
		recorder.IGMPEvent("other")
		if sameInterface(stack.Querier(), ingress) {
			return
		}
		g := stack.GetOrCreate(groupKey(msg))
		if g == nil {
			return
		}
		g.Add(ingress)
	}
}

func sameInterface(querier, ingress *iface.Interface) bool {
	if querier == nil || ingress == nil {
		return false
	}
	return querier.ID() == ingress.ID()
}
