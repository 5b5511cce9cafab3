// Package admin exposes a read-only JSON introspection surface over a
// cluster.Cluster: current topology, pooled nodes, and readiness. It never
// issues cluster commands or triggers a refresh, and has no effect on
// routing. An embedding service mounts Handler's gin.Engine (or its own
// equivalent routes) purely for operational visibility.
package admin

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/kinosuke01/renoir/cluster"
)

// Handler returns a gin.Engine with /topology, /pool, and /healthz routes
// bound to c. It is not started; the caller decides whether to Run it
// directly or mount it inside a larger router.
func Handler(c *cluster.Cluster) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": c.Ready()})
	})

	r.GET("/topology", func(ctx *gin.Context) {
		nodes := c.Nodes()
		names := make([]string, 0, len(nodes))
		for _, n := range nodes {
			names = append(names, n.Name())
		}
		sort.Strings(names)

		covered := 0
		for slot := 0; slot < 16384; slot++ {
			if _, ok := c.SlotOwner(slot); ok {
				covered++
			}
		}

		ctx.JSON(http.StatusOK, gin.H{
			"nodes":         names,
			"slots_covered": covered,
			"slots_total":   16384,
		})
	})

	r.GET("/pool", func(ctx *gin.Context) {
		names := c.PoolNodes()
		sort.Strings(names)
		ctx.JSON(http.StatusOK, gin.H{"pooled_nodes": names})
	})

	return r
}
