package web

import (
	"net/http"

	"github.com/deemkeen/loxodon/activitypub"
	"github.com/deemkeen/loxodon/storage"
	"github.com/deemkeen/loxodon/util"
	"github.com/gin-gonic/gin"
)

// NodeInfo 2.0, see https://nodeinfo.diaspora.software/schema.html
type NodeInfo20 struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Usage             NodeInfoUsage    `json:"usage"`
	Metadata          NodeInfoMetadata `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users      NodeInfoUsers `json:"users"`
	LocalPosts int           `json:"localPosts"`
}

type NodeInfoUsers struct {
	Total int `json:"total"`
}

type NodeInfoMetadata struct {
	NodeName string `json:"nodeName"`
}

type WellKnownNodeInfo struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

func handleWellKnownNodeInfo(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, WellKnownNodeInfo{
			Links: []NodeInfoLink{
				{
					Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
					Href: deps.Conf.BaseURL() + "/nodeinfo/2.0",
				},
			},
		})
	}
}

func handleNodeInfo(deps *activitypub.Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, uids := deps.Store.ListUsers()

		posts := 0
		for _, uid := range uids {
			posts += len(deps.Store.CacheList(uid, storage.CachePublic, 0))
		}

		c.JSON(http.StatusOK, NodeInfo20{
			Version: "2.0",
			Software: NodeInfoSoftware{
				Name:    util.Name,
				Version: util.GetVersion(),
			},
			Protocols: []string{"activitypub"},
			Services:  NodeInfoServices{Inbound: []string{}, Outbound: []string{}},
			Usage: NodeInfoUsage{
				Users:      NodeInfoUsers{Total: len(uids)},
				LocalPosts: posts,
			},
			Metadata: NodeInfoMetadata{NodeName: deps.Conf.Conf.Host},
		})
	}
}
