package api

import (
	"encoding/json"
	"net/http"

	log "github.com/cihub/seelog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sundy-li/offsetmon/protocol"
)

// Reader is the read API served over HTTP.
type Reader interface {
	GroupInfo(group string) protocol.GroupInfo
	ClusterTopology() protocol.Node
	TopicDetails(topic string) protocol.TopicDetails
	TopicAndConsumerDetails(topic string) protocol.TopicAndConsumersDetails
	ActiveTopicsTree() protocol.Node
	ListAllTopics() []string
	ListAllGroups() []string
}

// Source hands out a Reader per request.
type Source func() Reader

func NewServer(addr string, source Source) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewLagCollector(source))
	return &http.Server{
		Addr:    addr,
		Handler: NewRouter(source, registry),
	}
}

func NewRouter(source Source, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Methods(http.MethodGet).Subrouter()

	api.HandleFunc("/group/{group}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().GroupInfo(mux.Vars(req)["group"]))
	})
	api.HandleFunc("/cluster", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().ClusterTopology())
	})
	api.HandleFunc("/topic/{topic}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().TopicDetails(mux.Vars(req)["topic"]))
	})
	api.HandleFunc("/topic/{topic}/consumers", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().TopicAndConsumerDetails(mux.Vars(req)["topic"]))
	})
	api.HandleFunc("/activetopics", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().ActiveTopicsTree())
	})
	api.HandleFunc("/topics", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().ListAllTopics())
	})
	api.HandleFunc("/groups", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, source().ListAllGroups())
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}
