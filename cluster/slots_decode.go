package cluster

import (
	"fmt"
	"strconv"
)

// parseClusterSlots decodes the generic interface{} shape a CLUSTER SLOTS
// reply takes once run through the adapter's pipeline: an array of
// [start, end, [master-ip, master-port, id, ...], [replica-ip, ...]...]
// entries. probedHost fills in a node whose ip came back empty, which
// servers do for the node answering the query about itself.
func parseClusterSlots(v interface{}, probedHost string) ([]SlotRecord, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("renoir: unexpected CLUSTER SLOTS reply shape %T", v)
	}

	records := make([]SlotRecord, 0, len(arr))
	for _, elem := range arr {
		group, ok := elem.([]interface{})
		if !ok || len(group) < 3 {
			return nil, fmt.Errorf("renoir: malformed CLUSTER SLOTS entry")
		}
		start, err := toInt(group[0])
		if err != nil {
			return nil, err
		}
		end, err := toInt(group[1])
		if err != nil {
			return nil, err
		}
		master, err := parseSlotNode(group[2], probedHost)
		if err != nil {
			return nil, err
		}
		var replicas []Node
		for _, r := range group[3:] {
			rep, err := parseSlotNode(r, probedHost)
			if err != nil {
				continue
			}
			replicas = append(replicas, rep)
		}
		records = append(records, SlotRecord{Start: start, End: end, Master: master, Replicas: replicas})
	}
	return records, nil
}

func parseSlotNode(v interface{}, probedHost string) (Node, error) {
	parts, ok := v.([]interface{})
	if !ok || len(parts) < 2 {
		return Node{}, fmt.Errorf("renoir: malformed node entry in CLUSTER SLOTS reply")
	}
	host, _ := parts[0].(string)
	if host == "" {
		host = probedHost
	}
	port, err := toInt(parts[1])
	if err != nil {
		return Node{}, err
	}
	return Node{Host: host, Port: port}, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("renoir: expected integer, got %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("renoir: unexpected integer type %T in CLUSTER SLOTS reply", v)
	}
}
