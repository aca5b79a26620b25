// Package io reads candidate sequences and writes tracking results.
//
// # Sequence format
//
// A sequence is a JSON object with the image width and one entry per frame.
// Each frame lists its root candidates; every candidate may nest finer
// alternatives under "children":
//
//	{
//	  "width": 512,
//	  "frames": [
//	    {"nodes": [
//	      {"rect": [10, 10, 30, 20], "score": 0.9, "children": [
//	        {"rect": [10, 10, 20, 20], "score": 0.8},
//	        {"rect": [20, 10, 30, 20], "score": 0.7}
//	      ]}
//	    ]},
//	    {"nodes": [
//	      {"pixels": [5130, 5131, 5132], "score": 0.4}
//	    ]}
//	  ]
//	}
//
// A candidate gives its support either as "pixels", linear indices
// y*width + x, or as "rect", a half-open [x0, y0, x1, y1] box. Exactly one
// of the two is required. "score" is the extraction confidence and defaults
// to 0. An empty "nodes" list is a valid empty frame.
//
// [WriteSequence] always emits "pixels", so exported files round-trip
// exactly through [ReadSequence].
//
// # Results
//
// [Report] is the JSON document produced by a solve: the selected node IDs
// and edges, the objective with its bound and gap, event counts, the lineage
// link table and the track table.
//
// [WriteLinksCSV] writes the link table as CSV with the header
// parent,child,frame,event; a missing endpoint is written as -1.
//
// [WriteTracks] writes the track table in the Cell Tracking Challenge
// res_track.txt layout: one "L B E P" line per track, where L is the track
// label, B and E the first and last frame and P the parent label (0 for none).
package io
