package cluster

import (
	"fmt"

	"github.com/twmb/murmur3"

	"github.com/florann/databend/errors"
)

// NodeInfo identifies a single member of the cluster.
type NodeInfo struct {
	ID     string
	SeqNum uint64
	Addr   string
}

func NewNodeInfo(id string, seqNum uint64, addr string) *NodeInfo {
	return &NodeInfo{ID: id, SeqNum: seqNum, Addr: addr}
}

func (n *NodeInfo) String() string {
	return fmt.Sprintf("node[id=%s,seq=%d,addr=%s]", n.ID, n.SeqNum, n.Addr)
}

// Cluster is an immutable snapshot of cluster membership, taken when a query context is
// assembled. A topology change produces a new snapshot, queries in flight keep reading
// the one they were created with.
type Cluster struct {
	localID string
	nodes   []*NodeInfo
}

// CreateCluster creates a snapshot from a member list and the identity of the local node.
// A non-empty localID must name a member when the member list is non-empty.
func CreateCluster(nodes []*NodeInfo, localID string) (*Cluster, error) {
	if localID != "" && len(nodes) > 0 {
		found := false
		for _, node := range nodes {
			if node.ID == localID {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NewUnknownNodeError(localID)
		}
	}
	nodesCopy := make([]*NodeInfo, len(nodes))
	copy(nodesCopy, nodes)
	return &Cluster{localID: localID, nodes: nodesCopy}, nil
}

// EmptyCluster returns a snapshot with no members and no local identity, used for
// standalone mode and tests.
func EmptyCluster() *Cluster {
	return &Cluster{}
}

func (c *Cluster) IsEmpty() bool {
	return len(c.nodes) == 0
}

func (c *Cluster) LocalID() string {
	return c.localID
}

func (c *Cluster) Nodes() []*NodeInfo {
	nodes := make([]*NodeInfo, len(c.nodes))
	copy(nodes, c.nodes)
	return nodes
}

func (c *Cluster) NodeByID(id string) (*NodeInfo, error) {
	for _, node := range c.nodes {
		if node.ID == id {
			return node, nil
		}
	}
	return nil, errors.NewUnknownNodeError(id)
}

// Local returns the member this process is running as.
func (c *Cluster) Local() (*NodeInfo, error) {
	return c.NodeByID(c.localID)
}

// NodeForKey deterministically routes a key to one of the members. Returns nil when the
// snapshot has no members.
func (c *Cluster) NodeForKey(key []byte) *NodeInfo {
	if len(c.nodes) == 0 {
		return nil
	}
	hash := murmur3.Sum64(key)
	return c.nodes[hash%uint64(len(c.nodes))]
}

func (c *Cluster) String() string {
	return fmt.Sprintf("cluster[local=%s,nodes=%d]", c.localID, len(c.nodes))
}

// Descriptor accumulates node entries and builds a Cluster snapshot. Sequence numbers are
// assigned in insertion order starting at 1.
type Descriptor struct {
	localID string
	nodes   []*NodeInfo
}

func NewDescriptor() *Descriptor {
	return &Descriptor{}
}

func (d *Descriptor) WithNode(id string, addr string) *Descriptor {
	d.nodes = append(d.nodes, NewNodeInfo(id, uint64(len(d.nodes)+1), addr))
	return d
}

func (d *Descriptor) WithLocalID(id string) *Descriptor {
	d.localID = id
	return d
}

func (d *Descriptor) Build() (*Cluster, error) {
	return CreateCluster(d.nodes, d.localID)
}
