package webmap

import "html/template"

type pageData struct {
	Title       string
	TileURL     string
	Attrib      string
	Overlays    []overlay
	Images      []imageOverlay
	Bounds      [2][2]float64
	NeedCluster bool
	NeedHeat    bool
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
{{- if .NeedCluster}}
<link rel="stylesheet" href="https://unpkg.com/leaflet.markercluster@1.5.3/dist/MarkerCluster.css">
<link rel="stylesheet" href="https://unpkg.com/leaflet.markercluster@1.5.3/dist/MarkerCluster.Default.css">
<script src="https://unpkg.com/leaflet.markercluster@1.5.3/dist/leaflet.markercluster.js"></script>
{{- end}}
{{- if .NeedHeat}}
<script src="https://unpkg.com/leaflet.heat@0.2.0/dist/leaflet-heat.js"></script>
{{- end}}
<style>
html, body, #map { height: 100%; margin: 0; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map');
map.fitBounds([[{{index .Bounds 0 0}}, {{index .Bounds 0 1}}], [{{index .Bounds 1 0}}, {{index .Bounds 1 1}}]]);
L.tileLayer('{{.TileURL}}', { attribution: '{{.Attrib}}' }).addTo(map);
var overlays = {};

function bindTooltip(layer, feature, fields) {
  if (!fields.length || !feature.properties) { return; }
  var rows = [];
  fields.forEach(function (k) {
    if (feature.properties[k] !== undefined && feature.properties[k] !== null) {
      rows.push('<b>' + k + '</b>: ' + feature.properties[k]);
    }
  });
  if (rows.length) { layer.bindTooltip(rows.join('<br>')); }
}

var layers = [];

{{- range $i, $o := .Overlays}}
{{- if eq $o.Kind "heatmap"}}
layers[{{$i}}] = L.heatLayer({{$o.Data}}, { radius: {{$o.Radius}} });
{{- else}}
layers[{{$i}}] = L.geoJSON({{$o.Data}}, {
  style: function (feature) {
    return {
      color: '{{$o.Style.Color}}',
      weight: {{$o.Style.Weight}},
      fillColor: (feature.properties && feature.properties.__fill) || '{{$o.Style.FillColor}}',
      fillOpacity: {{$o.Style.FillOpacity}}
    };
  },
  onEachFeature: function (feature, layer) {
    bindTooltip(layer, feature, [{{range $j, $t := $o.Tooltip}}{{if $j}}, {{end}}'{{$t}}'{{end}}]);
  }
});
{{- if eq $o.Kind "cluster"}}
layers[{{$i}}] = L.markerClusterGroup().addLayer(layers[{{$i}}]);
{{- end}}
{{- end}}
overlays['{{$o.Name}}'] = layers[{{$i}}];
{{- if $o.Show}}
layers[{{$i}}].addTo(map);
{{- end}}
{{- end}}

{{- range $img := .Images}}
layers.push(L.imageOverlay('{{$img.DataURI}}',
  [[{{index $img.Bounds 0 0}}, {{index $img.Bounds 0 1}}], [{{index $img.Bounds 1 0}}, {{index $img.Bounds 1 1}}]],
  { opacity: {{$img.Opacity}} }));
overlays['{{$img.Name}}'] = layers[layers.length - 1];
layers[layers.length - 1].addTo(map);
{{- end}}

if (Object.keys(overlays).length > 1) {
  L.control.layers(null, overlays).addTo(map);
}
</script>
</body>
</html>
`))
